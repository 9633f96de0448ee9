// Package id generates identifiers for procedures, tasks and recordings.
package id

import (
	"log"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/rs/xid"
)

// A Generator can generate IDs.
type Generator interface {
	Generate() string
}

var (
	generatorMutex        sync.Mutex
	generatorInstantiated atomic.Bool
	generator             Generator
)

// UseSequentialGenerator configures the package-level generator to emit
// deterministic, increasing IDs. It must be called before the first ID is
// generated.
func UseSequentialGenerator() {
	setGenerator(&sequentialGenerator{})
}

// UseParallelGenerator configures the package-level generator to emit
// globally unique IDs that do not depend on generation order. The IDs are not
// deterministic across runs.
func UseParallelGenerator() {
	setGenerator(parallelGenerator{})
}

func setGenerator(g Generator) {
	generatorMutex.Lock()
	defer generatorMutex.Unlock()

	if generatorInstantiated.Load() {
		log.Panic("cannot change id generator type after using it")
	}

	generator = g
	generatorInstantiated.Store(true)
}

// Get returns the package-level generator, defaulting to the sequential one.
func Get() Generator {
	if generatorInstantiated.Load() {
		return generator
	}

	generatorMutex.Lock()
	defer generatorMutex.Unlock()

	if !generatorInstantiated.Load() {
		generator = &sequentialGenerator{}
		generatorInstantiated.Store(true)
	}

	return generator
}

// Generate returns a new ID from the package-level generator.
func Generate() string {
	return Get().Generate()
}

// NewSequentialGenerator returns a private sequential generator whose first
// ID is "1".
func NewSequentialGenerator() Generator {
	return &sequentialGenerator{}
}

type sequentialGenerator struct {
	nextID uint64
}

func (g *sequentialGenerator) Generate() string {
	idNumber := atomic.AddUint64(&g.nextID, 1)

	return strconv.FormatUint(idNumber, 10)
}

type parallelGenerator struct{}

func (g parallelGenerator) Generate() string {
	return xid.New().String()
}
