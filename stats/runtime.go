// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stats

import (
	"fmt"
	"runtime"
	"time"

	"github.com/kelindar/process"
)

// 创建时间
var (
	StartingTime = time.Now()
)

// Usage 进程资源占用采样
type Usage struct {
	CPU        float64       `json:"cpu"`        // cpu使用情况
	Priv       int32         `json:"priv"`       // 私有内存 KB
	Virt       int32         `json:"virt"`       // 虚拟内存 KB
	HeapInuse  int32         `json:"heap_inuse"` // KB MemStats.HeapInuse
	HeapAlloc  int32         `json:"heap_alloc"` // KB MemStats.HeapAlloc
	NumGC      uint32        `json:"num_gc"`
	GCCPU      float64       `json:"gc_cpu"` // MemStats.GCCPUFraction
	Goroutines int32         `json:"goroutines"`
	Uptime     time.Duration `json:"uptime"`
}

// MeasureUsage samples the process and the Go runtime. Process figures
// stay zero where the platform does not expose them.
func MeasureUsage() (u Usage) {
	u.Uptime = time.Since(StartingTime)

	var memory runtime.MemStats
	runtime.ReadMemStats(&memory)
	u.HeapInuse = toKB(memory.HeapInuse)
	u.HeapAlloc = toKB(memory.HeapAlloc)
	u.NumGC = memory.NumGC
	u.GCCPU = memory.GCCPUFraction
	u.Goroutines = int32(runtime.NumGoroutine())

	func() {
		defer func() { recover() }()
		var memoryPriv, memoryVirtual int64
		process.ProcUsage(&u.CPU, &memoryPriv, &memoryVirtual)
		u.Priv = toKB(uint64(memoryPriv))
		u.Virt = toKB(uint64(memoryVirtual))
	}()
	return
}

func (u Usage) String() string {
	return fmt.Sprintf("cpu %.1f%%, priv %dKB, heap %d/%dKB, gc %d (%.3f), goroutines %d, uptime %s",
		u.CPU, u.Priv, u.HeapAlloc, u.HeapInuse, u.NumGC, u.GCCPU, u.Goroutines,
		u.Uptime.Truncate(time.Second))
}

// Converts the memory in bytes to KBs, otherwise it would overflow our int32
func toKB(v uint64) int32 {
	return int32(v / 1024)
}
