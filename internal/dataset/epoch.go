package dataset

import (
	"errors"
	"fmt"
	"iter"
	"math/rand"

	"chipprep/internal/monitoring"

	"github.com/google/uuid"
)

// ErrEpochDone is returned by Epoch.Next once every batch has been emitted.
var ErrEpochDone = errors.New("epoch exhausted")

// State is the iteration state of an epoch.
type State int

const (
	StateIdle State = iota
	StateIterating
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateIterating:
		return "iterating"
	case StateExhausted:
		return "exhausted"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Batch is one step of an epoch.
type Batch struct {
	Index int
	// IDs names the chip of each sample. A chip appears once per crop.
	IDs    []string
	Images Tensor
	Labels [][]Label
	// Skipped lists chips that failed to load or augment.
	Skipped []string
}

// Len returns the number of samples in the batch.
func (b *Batch) Len() int {
	return len(b.IDs)
}

// Epoch walks one seeded permutation of the dataset.
type Epoch struct {
	ds    *Dataset
	id    string
	seed  int64
	rng   *rand.Rand
	perm  []int
	next  int
	state State
}

// Epoch starts a new pass over the dataset. The permutation and all
// augmentation draws come from seed, so equal seeds give equal epochs.
func (d *Dataset) Epoch(seed int64) *Epoch {
	rng := rand.New(rand.NewSource(seed))
	return &Epoch{
		ds:   d,
		id:   uuid.NewString(),
		seed: seed,
		rng:  rng,
		perm: rng.Perm(len(d.ids)),
	}
}

// ID identifies the epoch in logs.
func (e *Epoch) ID() string {
	return e.id
}

// State reports where the epoch is in its iteration.
func (e *Epoch) State() State {
	return e.state
}

// Remaining returns the number of batches not yet emitted.
func (e *Epoch) Remaining() int {
	return e.ds.Len() - e.next
}

// Next assembles the next batch. It returns ErrEpochDone after the last one.
// Chips that fail are logged and listed in Batch.Skipped unless the config
// asks to fail fast, in which case the error is returned and the batch is
// consumed.
func (e *Epoch) Next() (*Batch, error) {
	if e.state == StateExhausted || e.next >= e.ds.Len() {
		e.state = StateExhausted
		return nil, ErrEpochDone
	}
	if e.state == StateIdle {
		monitoring.Logf("Epoch %s: %d chips in %d batches (seed %d)",
			e.id, len(e.perm), e.ds.Len(), e.seed)
		e.state = StateIterating
	}

	index := e.next
	e.next++
	cfg := e.ds.cfg
	lo := index * cfg.BatchSize
	hi := min(lo+cfg.BatchSize, len(e.perm))

	batch := &Batch{Index: index}
	var samples []Sample
	defer func() {
		for i := range samples {
			samples[i].Close()
		}
	}()

	for _, idx := range e.perm[lo:hi] {
		id := e.ds.ids[idx]
		got, err := e.ds.Augment(e.rng, id)
		if err != nil {
			if cfg.FailFast {
				return nil, fmt.Errorf("failed to prepare chip %s: %w", id, err)
			}
			monitoring.Logf("Epoch %s: skipping chip %s: %v", e.id, id, err)
			batch.Skipped = append(batch.Skipped, id)
			continue
		}
		samples = append(samples, got...)
	}

	if cfg.CropsPerChip > 1 {
		e.rng.Shuffle(len(samples), func(i, j int) {
			samples[i], samples[j] = samples[j], samples[i]
		})
	}

	size := cfg.TargetSize
	batch.Images = NewTensor(len(samples), 3, size, size)
	batch.IDs = make([]string, len(samples))
	batch.Labels = make([][]Label, len(samples))
	for i, s := range samples {
		if err := e.ds.norm.fill(batch.Images.Sample(i), s.Image); err != nil {
			return nil, fmt.Errorf("failed to normalize chip %s: %w", s.ID, err)
		}
		batch.IDs[i] = s.ID
		batch.Labels[i] = e.ds.labels(s.Boxes)
	}
	return batch, nil
}

// Batches returns an iterator over a fresh epoch. Every range over the
// iterator restarts from seed. Errors are yielded with a nil batch and the
// consumer decides whether to keep going.
func (d *Dataset) Batches(seed int64) iter.Seq2[*Batch, error] {
	return func(yield func(*Batch, error) bool) {
		e := d.Epoch(seed)
		for {
			b, err := e.Next()
			if errors.Is(err, ErrEpochDone) {
				return
			}
			if !yield(b, err) {
				return
			}
		}
	}
}
