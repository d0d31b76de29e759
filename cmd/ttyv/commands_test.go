package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func setTestEnv(t *testing.T) (dataDir, blobDir string) {
	t.Helper()
	dataDir = t.TempDir()
	blobDir = t.TempDir()
	t.Setenv("TTYV_AZURE_OPENAI_ENDPOINT", "https://example.openai.azure.com")
	t.Setenv("TTYV_AZURE_OPENAI_API_KEY", "test-key")
	t.Setenv("TTYV_DATA_DIR", dataDir)
	t.Setenv("TTYV_BLOB_DIR", blobDir)
	return dataDir, blobDir
}

func TestPIDFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := pidFilePath(dir)

	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	pid, err := readPIDFile(path)
	if err != nil {
		t.Fatalf("readPIDFile: %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("pid = %d, want %d", pid, os.Getpid())
	}

	removePIDFile(path)
	if _, err := readPIDFile(path); err == nil {
		t.Error("expected error reading removed PID file")
	}
}

func TestFetchCommand_MissingChannel(t *testing.T) {
	setTestEnv(t)
	t.Setenv("TTYV_YOUTUBE_CHANNEL_ID", "")
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"fetch"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing channel")
	}
	if !strings.Contains(err.Error(), "channel") {
		t.Errorf("error = %q, want it to mention the channel", err.Error())
	}
}

func TestFetchCommand_MissingAPIKey(t *testing.T) {
	setTestEnv(t)
	t.Setenv("TTYV_YOUTUBE_CHANNEL_ID", "UCtest")
	t.Setenv("TTYV_YOUTUBE_API_KEY", "")
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"fetch"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing API key")
	}
	if !strings.Contains(err.Error(), "TTYV_YOUTUBE_API_KEY") {
		t.Errorf("error = %q, want it to name the missing variable", err.Error())
	}
}

func TestSnapshotCommand_RoundTrip(t *testing.T) {
	dataDir, blobDir := setTestEnv(t)
	defer rootCmd.SetArgs(nil)

	dbPath := filepath.Join(dataDir, "ttyv.db")
	if err := os.WriteFile(dbPath, []byte("database contents"), 0o644); err != nil {
		t.Fatalf("writing database file: %v", err)
	}

	rootCmd.SetArgs([]string{"snapshot"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if _, err := os.Stat(filepath.Join(blobDir, "snapshot.tar.gz")); err != nil {
		t.Fatalf("expected snapshot archive in blob dir: %v", err)
	}

	// Restore into a fresh data dir and compare.
	restoreDir := t.TempDir()
	t.Setenv("TTYV_DATA_DIR", restoreDir)

	rootCmd.SetArgs([]string{"snapshot", "--restore"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("restore: %v", err)
	}
	defer snapshotCmd.Flags().Set("restore", "false")

	restored, err := os.ReadFile(filepath.Join(restoreDir, "ttyv.db"))
	if err != nil {
		t.Fatalf("reading restored database: %v", err)
	}
	if string(restored) != "database contents" {
		t.Errorf("restored contents = %q, want %q", restored, "database contents")
	}
}

func TestSnapshotCommand_NoDatabase(t *testing.T) {
	setTestEnv(t)
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"snapshot"})
	if err := rootCmd.Execute(); err == nil {
		t.Fatal("expected error when no database exists")
	}
}

func TestAskCommand_MissingQuestion(t *testing.T) {
	setTestEnv(t)
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"ask"})
	if err := rootCmd.Execute(); err == nil {
		t.Fatal("expected error for missing question argument")
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}
