package engine

import (
	"context"
	"fmt"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/leftmike/rowdis/rowstore"
)

type keyState int

const (
	keyNotStarted keyState = iota
	keyNotFound
	keySimple
	keyNeedsExtension
	keyReading
	keyDone
	keyFailed
)

type pipelineKey struct {
	pk    []byte
	state keyState
	kr    *KeyRow
	value []byte
	tx    *rowstore.Tx
	next  uint32
	busy  bool
}

type completion struct {
	key   *pipelineKey
	err   error
	what  string
	bytes int64
	fn    func(key *pipelineKey) error
}

// pipeline reads many keys with at most Window transactions open at once.
// Executes run on their own goroutines; completions are handled one at a
// time by the goroutine driving the pipeline, which owns all of its state.
type pipeline struct {
	e         *Engine
	f         *family
	sem       *semaphore.Weighted
	done      chan completion
	inflight  int
	bytes     int64
	peakBytes int64
	opened    int64
	closed    int64
	open      int64
	peak      int64
	err       error
}

func (e *Engine) newPipeline(f *family) *pipeline {
	return &pipeline{
		e:    e,
		f:    f,
		sem:  semaphore.NewWeighted(int64(e.cfg.Window)),
		done: make(chan completion, e.cfg.Window),
	}
}

// mget returns the values of pks in order; a missing key has a nil value.
func (e *Engine) mget(ctx context.Context, f *family, pks [][]byte) ([][]byte, *pipeline,
	error) {

	p := e.newPipeline(f)
	keys := make([]*pipelineKey, len(pks))
	for i, pk := range pks {
		keys[i] = &pipelineKey{pk: pk}
	}

	for start := 0; start < len(keys); start += e.cfg.Window {
		end := start + e.cfg.Window
		if end > len(keys) {
			end = len(keys)
		}
		err := p.window(ctx, keys[start:end])
		if err != nil {
			return nil, p, err
		}
	}

	vals := make([][]byte, len(keys))
	for i, key := range keys {
		if key.state == keySimple || key.state == keyDone {
			vals[i] = key.value
		}
	}
	return vals, p, nil
}

func (p *pipeline) window(ctx context.Context, keys []*pipelineKey) error {
	for _, key := range keys {
		if p.err != nil {
			break
		}
		op, err := p.stage(ctx, key, rowstore.LockCommitted)
		if err != nil {
			p.fail(err)
			break
		}
		p.submit(ctx, key, rowstore.ExecCommit, "read key row", 0,
			func(key *pipelineKey) error {
				return p.keyRead(key, op)
			})
	}
	for p.inflight > 0 {
		p.wait()
	}

	var ext []*pipelineKey
	if p.err == nil {
		for _, key := range keys {
			if key.state == keyNeedsExtension {
				ext = append(ext, key)
			}
		}
	}
	for _, key := range ext {
		if p.err != nil {
			break
		}
		op, err := p.stage(ctx, key, rowstore.LockShared)
		if err != nil {
			p.fail(err)
			break
		}
		p.submit(ctx, key, rowstore.ExecNoCommit, "read key row", 0,
			func(key *pipelineKey) error {
				return p.lockedRead(key, op)
			})
	}
	for p.inflight > 0 {
		p.wait()
		if p.err == nil {
			p.submitReady(ctx, ext)
		}
	}

	for _, key := range keys {
		p.closeKey(key)
	}
	return p.check()
}

// stage opens a transaction for key and stages a read of its key row.
func (p *pipeline) stage(ctx context.Context, key *pipelineKey,
	lm rowstore.LockMode) (*rowstore.Operation, error) {

	err := p.sem.Acquire(ctx, 1)
	if err != nil {
		return nil, backendError(TransactionError, "failed to start transaction", err)
	}
	tx, err := p.e.begin(ctx)
	if err != nil {
		p.sem.Release(1)
		return nil, err
	}
	key.tx = tx
	p.opened += 1
	p.open += 1
	if p.open > p.peak {
		p.peak = p.open
	}

	op, err := tx.Read(p.f.keys, key.pk, lm)
	if err != nil {
		p.closeKey(key)
		return nil, stageError(err, "key row read")
	}
	return op, nil
}

func (p *pipeline) closeKey(key *pipelineKey) {
	if key.tx == nil {
		return
	}
	p.e.close(key.tx)
	key.tx = nil
	p.closed += 1
	p.open -= 1
	p.sem.Release(1)
}

func (p *pipeline) fail(err error) {
	if p.err == nil {
		p.err = err
	}
}

func (p *pipeline) submit(ctx context.Context, key *pipelineKey, et rowstore.ExecType,
	what string, bytes int64, fn func(key *pipelineKey) error) {

	p.inflight += 1
	if bytes > 0 {
		p.bytes += bytes
		if p.bytes > p.peakBytes {
			p.peakBytes = p.bytes
		}
		pipelineBytesGauge.Add(float64(bytes))
	}
	key.busy = true
	tx := key.tx
	go func() {
		p.done <- completion{
			key:   key,
			err:   tx.Execute(ctx, et),
			what:  what,
			bytes: bytes,
			fn:    fn,
		}
	}()
}

// wait handles one completion. Once the request has failed, completions
// only close their transactions.
func (p *pipeline) wait() {
	c := <-p.done
	p.inflight -= 1
	c.key.busy = false
	if c.bytes > 0 {
		p.bytes -= c.bytes
		pipelineBytesGauge.Sub(float64(c.bytes))
	}

	if c.err != nil {
		p.fail(backendError(ExecutionError, "failed to "+c.what, c.err))
	} else if p.err == nil {
		err := c.fn(c.key)
		if err == nil {
			return
		}
		p.fail(err)
	}
	c.key.state = keyFailed
	p.closeKey(c.key)
}

func (p *pipeline) keyRead(key *pipelineKey, op *rowstore.Operation) error {
	p.closeKey(key)
	if !op.Found() {
		key.state = keyNotFound
		pipelineKeysCounter.WithLabelValues("not_found").Inc()
		return nil
	}
	kr, err := decodeOperation(op)
	if err != nil {
		return err
	}
	if kr.RowCount == 0 {
		key.state = keySimple
		key.value = valueOf(kr)
		pipelineKeysCounter.WithLabelValues("simple").Inc()
		return nil
	}
	key.state = keyNeedsExtension
	key.kr = kr
	return nil
}

func (p *pipeline) lockedRead(key *pipelineKey, op *rowstore.Operation) error {
	if !op.Found() {
		key.state = keyNotFound
		p.closeKey(key)
		pipelineKeysCounter.WithLabelValues("not_found").Inc()
		return nil
	}
	kr, err := decodeOperation(op)
	if err != nil {
		return err
	}
	key.kr = kr
	key.value = valueOf(kr)
	if kr.RowCount == 0 {
		key.state = keySimple
		p.closeKey(key)
		pipelineKeysCounter.WithLabelValues("simple").Inc()
		return nil
	}
	key.state = keyReading
	key.next = 0
	return nil
}

// chunkBytes is the number of bytes held by ordinals [start, end) of kr.
func (p *pipeline) chunkBytes(kr *KeyRow, start, end uint32) int64 {
	extCap := int64(p.e.cfg.ExtensionCapacity)
	n := int64(end-start) * extCap
	if end == kr.RowCount {
		last := (int64(kr.TotalLen) - int64(len(kr.Inline))) - int64(kr.RowCount-1)*extCap
		n += last - extCap
	}
	return n
}

// submitReady submits the next sub-batch of extension row reads for every
// key which is not waiting on one, while the outstanding bytes are under
// the limit.
func (p *pipeline) submitReady(ctx context.Context, keys []*pipelineKey) {
	for _, key := range keys {
		if key.state != keyReading || key.busy || key.next >= key.kr.RowCount {
			continue
		}
		if p.bytes > 0 && p.bytes >= p.e.cfg.MaxOutstandingBytes {
			return
		}

		start := key.next
		end := start + uint32(p.e.cfg.ReadBatch)
		if end > key.kr.RowCount {
			end = key.kr.RowCount
		}
		ops, err := stageExtReads(key.tx, p.f, key.kr.SurrogateID, start, end)
		if err != nil {
			p.fail(err)
			key.state = keyFailed
			p.closeKey(key)
			return
		}
		key.next = end

		et := rowstore.ExecNoCommit
		if end == key.kr.RowCount {
			et = rowstore.ExecCommit
		}
		p.submit(ctx, key, et, "read extension rows", p.chunkBytes(key.kr, start, end),
			func(key *pipelineKey) error {
				return p.extRead(key, ops, start, end)
			})
	}
}

func (p *pipeline) extRead(key *pipelineKey, ops []*rowstore.Operation, start,
	end uint32) error {

	var err error
	key.value, err = appendChunks(key.value, ops, key.kr.SurrogateID, start)
	if err != nil {
		return err
	}
	if end == key.kr.RowCount {
		if err := checkLength(key.kr, key.value); err != nil {
			return err
		}
		key.state = keyDone
		p.closeKey(key)
		pipelineKeysCounter.WithLabelValues("extension").Inc()
	}
	return nil
}

// check verifies that every transaction opened by the pipeline has been
// closed, and returns the first error, if any.
func (p *pipeline) check() error {
	if p.opened != p.closed {
		consistencyFaultCounter.Inc()
		err := &Error{
			Kind: InternalConsistencyFault,
			Message: fmt.Sprintf("transaction leak: %d transactions opened, %d closed",
				p.opened, p.closed),
		}
		if p.e.cfg.FaultFatal {
			log.WithFields(log.Fields{
				"opened": p.opened,
				"closed": p.closed,
			}).Fatal("engine: transaction leak")
		}
		return err
	}
	return p.err
}

// mset writes each key value pair in its own transaction, with at most
// Window writes in progress. When a key appears more than once, only its last
// value is written. The first failure fails the request. The number of key
// rows created is returned.
func (e *Engine) mset(ctx context.Context, f *family, ns uint64, pairs [][]byte) (int64,
	error) {

	last := map[string]int{}
	for i := 0; i < len(pairs); i += 2 {
		last[string(pairs[i])] = i
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Window)
	var created int64
	for i := 0; i < len(pairs); i += 2 {
		if last[string(pairs[i])] != i {
			continue
		}
		key, val := pairs[i], pairs[i+1]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ok, err := e.set(gctx, f, ns, key, val)
			if ok {
				atomic.AddInt64(&created, 1)
			}
			return err
		})
	}
	err := g.Wait()
	if err != nil {
		return 0, err
	}
	return created, nil
}
