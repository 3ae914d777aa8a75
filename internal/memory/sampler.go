package memory

import (
	"fmt"
	"os"
	"time"

	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

// Sample is one observation of memory usage.
type Sample struct {
	UsedBytes  uint64    `json:"usedBytes"`
	TotalBytes uint64    `json:"totalBytes"`
	Percent    float64   `json:"percentage"`
	Timestamp  time.Time `json:"timestamp"`
}

// Sampler observes current memory usage. UsedBytes and TotalBytes are
// filled by the sampler; Percent and Timestamp by the manager.
type Sampler interface {
	Sample() (Sample, error)
}

// processSampler reports the process resident set against host memory.
type processSampler struct {
	proc *process.Process
}

// NewProcessSampler creates the default gopsutil-backed sampler for the
// current process.
func NewProcessSampler() (Sampler, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("memory: attach to own process: %w", err)
	}
	return &processSampler{proc: proc}, nil
}

func (s *processSampler) Sample() (Sample, error) {
	info, err := s.proc.MemoryInfo()
	if err != nil {
		return Sample{}, fmt.Errorf("memory: read process memory: %w", err)
	}
	vm, err := mem.VirtualMemory()
	if err != nil {
		return Sample{}, fmt.Errorf("memory: read host memory: %w", err)
	}
	return Sample{UsedBytes: info.RSS, TotalBytes: vm.Total}, nil
}
