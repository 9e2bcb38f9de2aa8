package logfile

// sampleLog is a trimmed Windows log of a normal play session.
const sampleLog = `00:00:00.000 |I| Application Print: Ryujinx Version: 1.1.1217
00:00:00.001 |I| Application PrintSystemInfo: Operating System: Microsoft Windows 10.0.19045 (X64)
00:00:00.001 |I| Application PrintSystemInfo: CPU: AMD Ryzen 7 5800X 8-Core Processor ; 16 logical
00:00:00.001 |I| Application PrintSystemInfo: RAM: Total 32691 MB ; Available 24012 MB
00:00:00.002 |I| Application Print: Logs Enabled: Info, Warning, Error, Guest, Stub
00:00:00.100 |I| Configuration LogValueChange: AudioBackend set to: OpenAl
00:00:00.100 |I| Configuration LogValueChange: EnableDockedMode set to: True
00:00:00.100 |I| Configuration LogValueChange: EnablePtc set to: True
00:00:00.100 |I| Configuration LogValueChange: EnableVsync set to: True
00:00:00.100 |I| Configuration LogValueChange: EnableShaderCache set to: True
00:00:00.100 |I| Configuration LogValueChange: ResScale set to: 1
00:00:00.100 |I| Configuration LogValueChange: IgnoreMissingServices set to: False
00:00:00.500 |I| Configuration LogValueChange: AudioBackend set to: SDL2
00:00:00.500 |I| Configuration LogValueChange: ResScale set to: 2
00:00:01.000 |I| Gpu PrintGpuInformation: NVIDIA GeForce RTX 3070
00:00:02.000 |I| HLE.FileSystem Print: Firmware Version: 16.0.3
00:00:03.000 |I| Loader LoadNca: Application Loaded: Super Mario Odyssey [64-bit]
00:00:03.100 |I| ModLoader ApplyModsForTitle: Found mod 'Widescreen' [E]
00:00:03.101 |I| ModLoader ApplyModsForTitle: Found mod 'HDTextures' [R]
00:00:04.000 |I| Hid Configure: ProController | PlayerIndex = Player1
00:00:04.001 |I| Hid Configure: Handheld | PlayerIndex = Handheld
00:00:04.002 |I| Hid Configure: ProController | PlayerIndex = Player1
00:00:05.000 |E| Gpu Shader: Failed to compile shader
    at Ryujinx.Graphics.Shader.Compile
00:01:05.000 |E| HLE.OsThread.33 KernelSyscall: Invalid memory state
    at Ryujinx.HLE.HOS.Kernel.Foo

    at Ryujinx.HLE.HOS.Kernel.Bar
00:02:10.123 |I| Application Exit: done
`

// macLog is a log from an Intel Mac with missing firmware and trimmed log levels.
const macLog = `00:00:00.000 |I| Application Print: Ryujinx Version: 1.1.1100
00:00:00.001 |I| Application PrintSystemInfo: Operating System: Darwin 22.1.0
00:00:00.001 |I| Application PrintSystemInfo: CPU: Intel(R) Core(TM) i5-8259U
00:00:00.001 |I| Application PrintSystemInfo: RAM: Total 8192 MB ; Available 3120 MB
00:00:00.002 |I| Application Print: Logs Enabled: Info, Error
00:00:01.000 |I| Gpu PrintGpuInformation: Intel Iris Plus Graphics 655
00:00:09.999 |I| Application Exit: done
`
