package demux

import (
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/syncqueue"
	"github.com/grailbio/hts/sam"
)

// Pipeline demultiplexes an ordered record stream against a barcode panel.
// Records are consumed from In, classified template by template, and written
// to Out in the input order. Counters and the tag-hop table accumulate across
// the run and are read back through Counts and TagHops after Run returns.
//
// With Opts.Threads <= 1 templates are processed inline on the caller's
// goroutine. Otherwise templates are batched into jobs and dispatched to a
// fixed worker pool; each job owns a private counter set and tag-hop table,
// so workers never touch shared state. Completed jobs are re-sequenced
// through an ordered queue and their records, counters and tag hops are
// drained on a single goroutine, which is the only place the globals are
// mutated.
type Pipeline struct {
	Table *Table
	Opts  Opts
	In    RecordReader
	Out   RecordWriter

	counts []Counts
	hops   TagHopTable
}

// Counts returns the global per-barcode counters. Valid after Run.
func (p *Pipeline) Counts() []Counts { return p.counts }

// TagHops returns the global tag-hop table. Valid after Run.
func (p *Pipeline) TagHops() TagHopTable { return p.hops }

// job is one batch of templates moving through the worker pool. A job is
// either being filled by the producer, queued for a worker, processed, or
// waiting in the ordered queue for the drain goroutine; afterwards it returns
// to the free list.
type job struct {
	seq       int
	templates [][]*sam.Record
	counts    []Counts
	hops      TagHopTable
	err       error
}

func (j *job) process(m *Matcher, opts Opts) {
	for _, tmpl := range j.templates {
		if err := processTemplate(tmpl, m, j.counts, j.hops, opts); err != nil {
			j.err = err
			return
		}
	}
}

func (j *job) reset() {
	j.templates = j.templates[:0]
	for i := range j.counts {
		j.counts[i] = Counts{}
	}
	j.hops = TagHopTable{}
	j.err = nil
}

// Run processes the whole input stream. The first failure (a FormatError
// inside a job, a read error, a write error) aborts the run; there are no
// retries and no partial output for a failed job.
func (p *Pipeline) Run() error {
	p.counts = p.Table.NewCounts()
	p.hops = TagHopTable{}
	if p.Opts.BatchSize <= 0 {
		p.Opts.BatchSize = DefaultOpts.BatchSize
	}
	if p.Opts.Threads <= 1 {
		return p.runSequential()
	}
	return p.runParallel()
}

func (p *Pipeline) runSequential() error {
	m := NewMatcher(p.Table, p.Opts)
	tr := NewTemplateReader(p.In)
	nTemplates := 0
	for {
		tmpl, err := tr.Next()
		if err != nil {
			return err
		}
		if tmpl == nil {
			break
		}
		if err := processTemplate(tmpl, m, p.counts, p.hops, p.Opts); err != nil {
			return err
		}
		for _, r := range tmpl {
			if err := p.Out.Write(r); err != nil {
				return err
			}
		}
		nTemplates++
	}
	log.Debug.Printf("demux: %d templates processed sequentially", nTemplates)
	return nil
}

func (p *Pipeline) runParallel() error {
	var (
		m       = NewMatcher(p.Table, p.Opts)
		threads = p.Opts.Threads
		e       = errors.Once{}
		// The queue re-sequences completed jobs into submission order and
		// bounds the number of outstanding jobs; workers inserting too far
		// ahead of the drain block here, which is the pool's backpressure.
		queue   = syncqueue.NewOrderedQueue(2 * threads)
		jobCh   = make(chan *job, threads)
		freeCh  = make(chan *job, 2*threads)
		wgWork  sync.WaitGroup
		wgDrain sync.WaitGroup
	)

	for i := 0; i < threads; i++ {
		wgWork.Add(1)
		go func() {
			defer wgWork.Done()
			for j := range jobCh {
				j.process(m, p.Opts)
				if err := queue.Insert(j.seq, j); err != nil {
					// The queue was closed by the drain goroutine on a fatal
					// error; keep consuming so the producer can finish.
					e.Set(err)
				}
			}
		}()
	}

	wgDrain.Add(1)
	go func() {
		defer wgDrain.Done()
		for {
			entry, ok, err := queue.Next()
			if err != nil {
				e.Set(err)
				return
			}
			if !ok {
				return
			}
			j := entry.(*job)
			if j.err != nil {
				e.Set(j.err)
				queue.Close(j.err) // nolint: errcheck
				return
			}
			for _, tmpl := range j.templates {
				for _, r := range tmpl {
					if err := p.Out.Write(r); err != nil {
						e.Set(err)
						queue.Close(err) // nolint: errcheck
						return
					}
				}
			}
			for i := range j.counts {
				p.counts[i].merge(j.counts[i])
			}
			p.hops.Merge(j.hops)
			j.reset()
			select {
			case freeCh <- j:
			default:
			}
		}
	}()

	tr := NewTemplateReader(p.In)
	var cur *job
	seq := 0
	for {
		tmpl, err := tr.Next()
		if err != nil {
			e.Set(err)
			break
		}
		if tmpl == nil {
			break
		}
		if cur == nil {
			select {
			case cur = <-freeCh:
			default:
				cur = &job{counts: p.Table.NewCounts(), hops: TagHopTable{}}
			}
			cur.seq = seq
			seq++
		}
		cur.templates = append(cur.templates, tmpl)
		if len(cur.templates) >= p.Opts.BatchSize {
			jobCh <- cur
			cur = nil
		}
	}
	if cur != nil && len(cur.templates) > 0 {
		jobCh <- cur
	}
	close(jobCh)
	wgWork.Wait()
	e.Set(queue.Close(nil))
	wgDrain.Wait()
	log.Debug.Printf("demux: %d jobs dispatched across %d workers", seq, threads)
	return e.Err()
}
