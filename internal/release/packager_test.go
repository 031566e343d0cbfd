package release

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

func stubBuild(t *testing.T) *[]string {
	t.Helper()
	var built []string
	orig := buildBinary
	buildBinary = func(_ context.Context, _ string, target Target, version, outPath string) error {
		built = append(built, target.String()+"@"+version)
		return os.WriteFile(outPath, []byte("binary "+target.String()), 0o755)
	}
	t.Cleanup(func() { buildBinary = orig })
	return &built
}

func TestBuildArtifacts(t *testing.T) {
	built := stubBuild(t)

	repo := t.TempDir()
	if err := os.WriteFile(filepath.Join(repo, "README.md"), []byte("# screencast\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(t.TempDir(), "dist")

	artifacts, err := BuildArtifacts(context.Background(), Options{
		OutDir:   out,
		RepoRoot: repo,
		Version:  "1.2.3",
		Targets: []Target{
			{GOOS: "linux", GOARCH: "amd64"},
			{GOOS: "windows", GOARCH: "amd64"},
		},
	})
	if err != nil {
		t.Fatalf("BuildArtifacts: %v", err)
	}
	if len(artifacts) != 2 {
		t.Fatalf("expected 2 artifacts, got %d", len(artifacts))
	}
	if got := strings.Join(*built, ","); got != "linux/amd64@1.2.3,windows/amd64@1.2.3" {
		t.Fatalf("unexpected builds %q", got)
	}

	if artifacts[0].ArchiveName != "screencast_1.2.3_linux_amd64.tar.gz" {
		t.Fatalf("unexpected archive name %q", artifacts[0].ArchiveName)
	}
	if artifacts[1].ArchiveName != "screencast_1.2.3_windows_amd64.zip" {
		t.Fatalf("unexpected archive name %q", artifacts[1].ArchiveName)
	}

	tarNames := tarEntries(t, artifacts[0].ArchivePath)
	for _, want := range []string{
		"screencast_1.2.3_linux_amd64/screencast",
		"screencast_1.2.3_linux_amd64/README.md",
		"screencast_1.2.3_linux_amd64/config.example.yaml",
	} {
		if !contains(tarNames, want) {
			t.Fatalf("tar missing %q: %v", want, tarNames)
		}
	}

	zipNames := zipEntries(t, artifacts[1].ArchivePath)
	if !contains(zipNames, "screencast_1.2.3_windows_amd64/screencast.exe") {
		t.Fatalf("zip missing binary: %v", zipNames)
	}

	if _, err := os.Stat(filepath.Join(out, ".stage")); !os.IsNotExist(err) {
		t.Fatalf("stage dir should be removed, stat err=%v", err)
	}

	sums, err := os.ReadFile(filepath.Join(out, "SHA256SUMS"))
	if err != nil {
		t.Fatalf("read checksums: %v", err)
	}
	var want strings.Builder
	for _, a := range artifacts {
		data, err := os.ReadFile(a.ArchivePath)
		if err != nil {
			t.Fatal(err)
		}
		fmt.Fprintf(&want, "%x  %s\n", sha256.Sum256(data), a.ArchiveName)
	}
	if string(sums) != want.String() {
		t.Fatalf("checksums mismatch:\n%s\nwant:\n%s", sums, want.String())
	}
}

func TestBuildArtifacts_RequiresOptions(t *testing.T) {
	stubBuild(t)
	cases := []Options{
		{RepoRoot: ".", Version: "1"},
		{OutDir: t.TempDir(), Version: "1"},
		{OutDir: t.TempDir(), RepoRoot: "."},
	}
	for i, opts := range cases {
		if _, err := BuildArtifacts(context.Background(), opts); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestBuildArtifacts_BuildFailure(t *testing.T) {
	orig := buildBinary
	buildBinary = func(context.Context, string, Target, string, string) error {
		return fmt.Errorf("go build linux/amd64 failed")
	}
	t.Cleanup(func() { buildBinary = orig })

	_, err := BuildArtifacts(context.Background(), Options{
		OutDir:   t.TempDir(),
		RepoRoot: t.TempDir(),
		Version:  "dev",
		Targets:  []Target{{GOOS: "linux", GOARCH: "amd64"}},
	})
	if err == nil || !strings.Contains(err.Error(), "go build") {
		t.Fatalf("expected build error, got %v", err)
	}
}

func TestRenderExampleConfig(t *testing.T) {
	body, err := renderExampleConfig()
	if err != nil {
		t.Fatalf("renderExampleConfig: %v", err)
	}
	for _, want := range []string{"work_dir: ~/dlna-cast", "framerate: 30", "playlist_timeout: 30s"} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("expected %q in:\n%s", want, body)
		}
	}
}

func tarEntries(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	tr := tar.NewReader(gz)
	var names []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		names = append(names, hdr.Name)
	}
	sort.Strings(names)
	return names
}

func zipEntries(t *testing.T, path string) []string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatal(err)
	}
	defer zr.Close()
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
