package parser

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

const hsErrWindows = `#
# A fatal error has been detected by the Java Runtime Environment:
#
#  EXCEPTION_ACCESS_VIOLATION (0xc0000005) at pc=0x00007ffcaed3c475, pid=17708, tid=5556
#
# JRE version: OpenJDK Runtime Environment JBR-17.0.12+1-1087.25-jcef (17.0.12+1) (build 17.0.12+1-b1087.25)
# Java VM: OpenJDK 64-Bit Server VM JBR-17.0.12+1-1087.25-jcef
# Problematic frame:
# V  [jvm.dll+0x36c475]
#
---------------  S Y S T E M  ---------------

OS:
 Windows 11 , 64 bit Build 22621 (10.0.22621.3958)
`

const hsErrLinux = `# A fatal error has been detected by the Java Runtime Environment:
#
#  SIGSEGV (0xb) at pc=0x00007f3c2d1a2b3c, pid=4242, tid=4243
#
# JRE version: OpenJDK Runtime Environment (21.0.2+13) (build 21.0.2+13-58)
# Problematic frame:
# C  [libc.so.6+0x9a2b3c]
OS: Ubuntu 22.04.4 LTS
`

const metalTrace = `java.lang.IllegalStateException: Error - unable to initialize Metal after recreation of graphics device. Cannot load metal library: No MTLDevice.
	at java.desktop/sun.awt.CGraphicsDevice.<init>(CGraphicsDevice.java:91)
Exception in NSApplicationAWT: java.lang.IllegalStateException: Error - unable to initialize Metal`

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Format
	}{
		{"hs_err header", hsErrWindows, FormatHsErr},
		{"insufficient memory", "# There is insufficient memory for the Java Runtime Environment to continue.", FormatHsErr},
		{"stack trace", metalTrace, FormatStackTrace},
		{"bare exception", `java.lang.NullPointerException: Cannot invoke "java.awt.image.VolatileImage.getGraphics()"`, FormatStackTrace},
		{"idea.log", "2024-05-01 10:15:42,123 [  84211]  ERROR - #c.i.o.a.i.ActionUtil - boom", FormatIDELog},
		{"generic", "something went wrong", FormatGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectFormat(tt.input); got != tt.want {
				t.Errorf("DetectFormat() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDetectPlatform(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"explicit windows OS line", "OS: Windows 10 , 64 bit Build 19041", "windows"},
		{"explicit darwin OS line", "# OS: uname: Darwin 23.4.0 Darwin Kernel", "mac"},
		{"explicit linux distro", hsErrLinux, "linux"},
		{"windows by dll", "# C  [chrome_elf.dll+0x1b549]  EXCEPTION_ACCESS_VIOLATION", "windows"},
		{"mac by metal", metalTrace, "mac"},
		{"no signal", "Native memory allocation (malloc) failed to allocate 1407664 bytes", ""},
		{"tie is undecided", "foo.dll bar.dylib", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectPlatform(tt.input); got != tt.want {
				t.Errorf("DetectPlatform() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExceptionTypes(t *testing.T) {
	got := ExceptionTypes(metalTrace + "\nCaused by: java.lang.OutOfMemoryError: Java heap space\nOut of Memory Error (arena.cpp:191)")
	want := []string{"IllegalStateException", "OutOfMemoryError"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExceptionTypes() = %v, want %v", got, want)
	}

	if got := ExceptionTypes("EXCEPTION_ACCESS_VIOLATION (0xc0000005)"); len(got) != 0 {
		t.Errorf("native exception codes are not Java types, got %v", got)
	}
}

func TestInspect_HsErr(t *testing.T) {
	r := Inspect(hsErrWindows)

	if r.Format != FormatHsErr {
		t.Errorf("Format = %v, want %v", r.Format, FormatHsErr)
	}
	if r.Platform != "windows" {
		t.Errorf("Platform = %q, want windows", r.Platform)
	}
	if r.Signal != "EXCEPTION_ACCESS_VIOLATION" {
		t.Errorf("Signal = %q", r.Signal)
	}
	if r.JREVersion != "OpenJDK Runtime Environment JBR-17.0.12+1-1087.25-jcef (17.0.12+1) (build 17.0.12+1-b1087.25)" {
		t.Errorf("JREVersion = %q", r.JREVersion)
	}
	if r.ProblematicFrame != "V  [jvm.dll+0x36c475]" {
		t.Errorf("ProblematicFrame = %q", r.ProblematicFrame)
	}
	if r.PID != 17708 {
		t.Errorf("PID = %d, want 17708", r.PID)
	}
}

func TestInspect_Linux(t *testing.T) {
	r := Inspect(hsErrLinux)
	if r.Signal != "SIGSEGV" {
		t.Errorf("Signal = %q, want SIGSEGV", r.Signal)
	}
	if r.ProblematicFrame != "C  [libc.so.6+0x9a2b3c]" {
		t.Errorf("ProblematicFrame = %q", r.ProblematicFrame)
	}
}

func TestInspect_Empty(t *testing.T) {
	r := Inspect("   ")
	if r.Lines != 0 || r.Platform != "" || len(r.Exceptions) != 0 {
		t.Errorf("unexpected report for empty input: %+v", r)
	}
}

func TestReadFile_DropsInvalidUTF8(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hs_err_pid1.log")
	if err := os.WriteFile(path, []byte("ok\xff\xfe text"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if got != "ok text" {
		t.Errorf("ReadFile() = %q, want %q", got, "ok text")
	}

	if _, err := ReadFile(filepath.Join(t.TempDir(), "missing.log")); err == nil {
		t.Error("expected error for missing file")
	}
}
