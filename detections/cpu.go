package detections

import (
	"runtime"

	"golang.org/x/sys/cpu"
)

// CPUFeatures lists the vector extensions onnxruntime can dispatch to on this
// host. Reported at startup and on /metrics.
func CPUFeatures() []string {
	var features []string
	switch runtime.GOARCH {
	case "amd64", "386":
		if cpu.X86.HasAVX512F {
			features = append(features, "avx512f")
		}
		if cpu.X86.HasAVX2 {
			features = append(features, "avx2")
		}
		if cpu.X86.HasFMA {
			features = append(features, "fma")
		}
		if cpu.X86.HasSSE41 {
			features = append(features, "sse4.1")
		}
	case "arm64":
		if cpu.ARM64.HasASIMD {
			features = append(features, "asimd")
		}
		if cpu.ARM64.HasFPHP {
			features = append(features, "fp16")
		}
	}
	return features
}

// SessionThreads splits the cores between pooled sessions so concurrent
// inferences do not oversubscribe the CPU.
func SessionThreads(poolSize int) int {
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}
	threads := runtime.NumCPU() / poolSize
	if threads < 1 {
		threads = 1
	}
	return threads
}
