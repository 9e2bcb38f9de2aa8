package notification

import (
	"testing"

	"github.com/ryubing/robocop-go/internal/logfile"
)

const sampleLog = `00:00:00.000 |I| Application Print: Ryujinx Version: 1.1.1217
00:00:00.001 |I| Application PrintSystemInfo: Operating System: Microsoft Windows 10.0.19045 (X64)
00:00:00.001 |I| Application PrintSystemInfo: CPU: AMD Ryzen 7 5800X 8-Core Processor ; 16 logical
00:00:00.001 |I| Application PrintSystemInfo: RAM: Total 4000 MB ; Available 2000 MB
00:00:00.002 |I| Application Print: Logs Enabled: Info, Warning, Error, Guest, Stub
00:00:01.000 |I| Gpu PrintGpuInformation: NVIDIA GeForce RTX 3070
00:00:03.000 |I| Loader LoadNca: Application Loaded: Super Mario Odyssey [64-bit]
00:00:04.000 |I| Hid Configure: ProController | PlayerIndex = Player1
00:01:05.000 |E| Gpu Fail: Something went wrong
    at Ryujinx.Graphics.Gpu.Foo
00:02:10.000 |I| Application Exit: done
`

func sampleReport(t *testing.T) *logfile.Report {
	t.Helper()
	r, err := logfile.Analyze(sampleLog)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	return r.WithFooter("@mario")
}
