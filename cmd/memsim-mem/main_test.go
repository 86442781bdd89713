package main

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// buildDumpFixture lays out a single page-table chain (PGD->PUD->PMD->PTE)
// entirely at PGD/PUD/PMD/PTE index 0, mapping virtual page 0 to physical
// page 4, with a known word at offset 0 of that page.
func buildDumpFixture(t *testing.T) string {
	t.Helper()
	const pageSize = 4096
	img := make([]byte, pageSize*5)

	putPTE := func(dirBase uint32, index uint16, value uint32) {
		off := dirBase + uint32(index)*4
		binary.LittleEndian.PutUint32(img[off:off+4], value)
	}

	pudBase := uint32(1 * pageSize)
	pmdBase := uint32(2 * pageSize)
	pteBase := uint32(3 * pageSize)
	dataBase := uint32(4 * pageSize)

	putPTE(0, 0, pudBase)
	putPTE(pudBase, 0, pmdBase)
	putPTE(pmdBase, 0, pteBase)
	putPTE(pteBase, 0, dataBase)

	binary.LittleEndian.PutUint32(img[dataBase:dataBase+4], 0xCAFEBABE)
	img[dataBase+4] = 0x42

	dir := t.TempDir()
	path := filepath.Join(dir, "image.bin")
	if err := os.WriteFile(path, img, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestRunReadsWordAndByte(t *testing.T) {
	dumpPath := buildDumpFixture(t)

	dir := t.TempDir()
	cmdPath := filepath.Join(dir, "commands.txt")
	cmds := "R D W @0x0000000000000000\nR D B @0x0000000000000004\n"
	if err := os.WriteFile(cmdPath, []byte(cmds), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	outPath := filepath.Join(dir, "out.txt")
	outFile, err := os.Create(outPath)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := run(dumpPath, "", cmdPath, outFile); err != nil {
		t.Fatalf("run: %v", err)
	}
	outFile.Close()

	got, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Contains(got, []byte("word 0xCAFEBABE")) {
		t.Fatalf("output missing expected word: %s", got)
	}
	if !bytes.Contains(got, []byte("byte 0x42")) {
		t.Fatalf("output missing expected byte: %s", got)
	}
}

func TestRunWritesThenReadsBack(t *testing.T) {
	dumpPath := buildDumpFixture(t)

	dir := t.TempDir()
	cmdPath := filepath.Join(dir, "commands.txt")
	cmds := "W D W 0xDEADBEEF @0x0000000000000000\n" +
		"R D W @0x0000000000000000\n" +
		"W D B 0x7F @0x0000000000000004\n" +
		"R D B @0x0000000000000004\n"
	if err := os.WriteFile(cmdPath, []byte(cmds), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	outPath := filepath.Join(dir, "out.txt")
	outFile, err := os.Create(outPath)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := run(dumpPath, "", cmdPath, outFile); err != nil {
		t.Fatalf("run: %v", err)
	}
	outFile.Close()

	got, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Contains(got, []byte("word 0xDEADBEEF")) {
		t.Fatalf("expected the written word to be read back: %s", got)
	}
	if !bytes.Contains(got, []byte("byte 0x7F")) {
		t.Fatalf("expected the written byte to be read back: %s", got)
	}
}

func TestRunRejectsBothSourcesOrNeither(t *testing.T) {
	dir := t.TempDir()
	cmdPath := filepath.Join(dir, "commands.txt")
	if err := os.WriteFile(cmdPath, []byte("R I @0x0000000000000000\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := run("", "", cmdPath, os.Stdout); err == nil {
		t.Fatalf("expected error when neither -dump nor -description is set")
	}
	if err := run("a", "b", cmdPath, os.Stdout); err == nil {
		t.Fatalf("expected error when both -dump and -description are set")
	}
}

func TestRunRejectsMissingCommandsFile(t *testing.T) {
	dumpPath := buildDumpFixture(t)
	if err := run(dumpPath, "", "", os.Stdout); err == nil {
		t.Fatalf("expected error when -commands is missing")
	}
}
