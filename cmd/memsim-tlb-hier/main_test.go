package main

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

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

	dir := t.TempDir()
	path := filepath.Join(dir, "image.bin")
	if err := os.WriteFile(path, img, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestRunReportsMissThenHitAndDumpsAllLevels(t *testing.T) {
	dumpPath := buildDumpFixture(t)

	dir := t.TempDir()
	cmdPath := filepath.Join(dir, "commands.txt")
	cmds := "R I @0x0000000000000000\nR I @0x0000000000000000\n"
	if err := os.WriteFile(cmdPath, []byte(cmds), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	outPath := filepath.Join(dir, "out.txt")
	outFile, err := os.Create(outPath)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	prefix := filepath.Join(dir, "tlb")
	if err := run(dumpPath, "", cmdPath, prefix, outFile); err != nil {
		t.Fatalf("run: %v", err)
	}
	outFile.Close()

	got, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Contains(got, []byte("(miss)")) || !bytes.Contains(got, []byte("(hit)")) {
		t.Fatalf("expected a miss then a hit line: %s", got)
	}

	for _, suffix := range []string{"l1i", "l1d", "l2"} {
		if _, err := os.Stat(prefix + "." + suffix + ".txt"); err != nil {
			t.Fatalf("expected dump file for %s: %v", suffix, err)
		}
	}
}

func TestRunRejectsBothSourcesOrNeither(t *testing.T) {
	dir := t.TempDir()
	cmdPath := filepath.Join(dir, "commands.txt")
	if err := os.WriteFile(cmdPath, []byte("R I @0x0000000000000000\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := run("", "", cmdPath, "", os.Stdout); err == nil {
		t.Fatalf("expected error when neither -dump nor -description is set")
	}
}
