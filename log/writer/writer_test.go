package writer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWriterWithOptions(t *testing.T) {
	tempDir := t.TempDir()

	tests := []struct {
		name    string
		options *Options
		wantErr bool
	}{
		{name: "nil options", options: nil},
		{name: "empty type", options: &Options{}},
		{name: "console stderr", options: &Options{Type: "console", Console: &ConsoleWriterOptions{Target: "stderr"}}},
		{name: "file", options: &Options{Type: "file", File: &FileWriterOptions{Path: filepath.Join(tempDir, "a.log")}}},
		{name: "file without path", options: &Options{Type: "file"}, wantErr: true},
		{
			name: "multi",
			options: &Options{Type: "multi", Writers: []Options{
				{Type: "console"},
				{Type: "file", File: &FileWriterOptions{Path: filepath.Join(tempDir, "b.log")}},
			}},
		},
		{name: "multi empty", options: &Options{Type: "multi"}, wantErr: true},
		{name: "unknown type", options: &Options{Type: "syslog"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := NewWriterWithOptions(tt.options)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewWriterWithOptions() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				if err := w.Close(); err != nil {
					t.Errorf("Close() error = %v", err)
				}
			}
		})
	}
}

func TestConsoleWriterTarget(t *testing.T) {
	tests := []struct {
		name       string
		options    *ConsoleWriterOptions
		wantTarget string
	}{
		{"nil options", nil, "stdout"},
		{"stdout", &ConsoleWriterOptions{Target: "stdout"}, "stdout"},
		{"stderr", &ConsoleWriterOptions{Target: "stderr"}, "stderr"},
		{"empty target defaults to stdout", &ConsoleWriterOptions{}, "stdout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := NewConsoleWriterWithOptions(tt.options)
			if err != nil {
				t.Fatalf("NewConsoleWriterWithOptions() error = %v", err)
			}
			if w.Target() != tt.wantTarget {
				t.Errorf("Target() = %s, want %s", w.Target(), tt.wantTarget)
			}
		})
	}
}

func TestFileWriter(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "nested", "dir", "test.log")

	w, err := NewFileWriterWithOptions(&FileWriterOptions{Path: logFile})
	if err != nil {
		t.Fatalf("NewFileWriterWithOptions() error = %v", err)
	}

	testData := []byte("test log message\n")
	n, err := w.Write(testData)
	if err != nil {
		t.Errorf("FileWriter.Write() error = %v", err)
	}
	if n != len(testData) {
		t.Errorf("FileWriter.Write() wrote %d bytes, want %d", n, len(testData))
	}

	if err := w.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := w.Write(testData); err == nil {
		t.Error("Write() after Close() should fail")
	}

	content, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(content), "test log message") {
		t.Errorf("Log file doesn't contain expected message")
	}
}

func TestMultiWriter(t *testing.T) {
	tempDir := t.TempDir()
	file1 := filepath.Join(tempDir, "1.log")
	file2 := filepath.Join(tempDir, "2.log")

	w, err := NewMultiWriterWithOptions(&MultiWriterOptions{
		Writers: []Options{
			{Type: "file", File: &FileWriterOptions{Path: file1}},
			{Type: "file", File: &FileWriterOptions{Path: file2}},
		},
	})
	if err != nil {
		t.Fatalf("NewMultiWriterWithOptions() error = %v", err)
	}

	testData := []byte("multi writer test\n")
	n, err := w.Write(testData)
	if err != nil {
		t.Errorf("MultiWriter.Write() error = %v", err)
	}
	if n != len(testData) {
		t.Errorf("MultiWriter.Write() wrote %d bytes, want %d", n, len(testData))
	}
	if err := w.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	for _, f := range []string{file1, file2} {
		content, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("Failed to read %s: %v", f, err)
		}
		if string(content) != string(testData) {
			t.Errorf("%s content = %q, want %q", f, content, testData)
		}
	}
}
