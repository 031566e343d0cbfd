// Package release cross-builds screencast and packs one archive per target
// with a SHA256SUMS file next to them.
package release

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"go2tv.app/screencast/internal/config"
)

const (
	binaryBase      = "screencast"
	versionVariable = "go2tv.app/screencast/internal/buildinfo.Version"
	exampleConfig   = "config.example.yaml"
	checksumFile    = "SHA256SUMS"
)

type Target struct {
	GOOS   string
	GOARCH string
}

func (t Target) String() string {
	return t.GOOS + "/" + t.GOARCH
}

type Artifact struct {
	Target         Target
	ArchiveName    string
	ArchivePath    string
	PackageDirName string
}

type Options struct {
	OutDir   string
	RepoRoot string
	Version  string
	Targets  []Target
	Logger   *zap.Logger
}

// DefaultTargets are the platforms with built-in capture defaults.
var DefaultTargets = []Target{
	{GOOS: "linux", GOARCH: "amd64"},
	{GOOS: "linux", GOARCH: "arm64"},
	{GOOS: "darwin", GOARCH: "amd64"},
	{GOOS: "darwin", GOARCH: "arm64"},
	{GOOS: "windows", GOARCH: "amd64"},
}

// releaseDocs are copied into every package when present in the repo root.
var releaseDocs = []string{"README.md", "LICENSE"}

// buildBinary compiles the CLI for one target. Tests replace it.
var buildBinary = goBuild

func BuildArtifacts(ctx context.Context, opts Options) ([]Artifact, error) {
	if strings.TrimSpace(opts.OutDir) == "" {
		return nil, errors.New("out dir is required")
	}
	if strings.TrimSpace(opts.RepoRoot) == "" {
		return nil, errors.New("repo root is required")
	}
	if strings.TrimSpace(opts.Version) == "" {
		return nil, errors.New("version is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	targets := opts.Targets
	if len(targets) == 0 {
		targets = DefaultTargets
	}

	repoRoot, err := filepath.Abs(opts.RepoRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve repo root: %w", err)
	}
	outDir, err := filepath.Abs(opts.OutDir)
	if err != nil {
		return nil, fmt.Errorf("resolve out dir: %w", err)
	}

	if err := os.RemoveAll(outDir); err != nil {
		return nil, fmt.Errorf("clean out dir: %w", err)
	}
	stageRoot := filepath.Join(outDir, ".stage")
	if err := os.MkdirAll(stageRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create stage dir: %w", err)
	}
	defer os.RemoveAll(stageRoot)

	example, err := renderExampleConfig()
	if err != nil {
		return nil, err
	}

	var artifacts []Artifact
	for _, target := range targets {
		pkgDirName := packageDirName(opts.Version, target)
		pkgDir := filepath.Join(stageRoot, pkgDirName)
		if err := os.MkdirAll(pkgDir, 0o755); err != nil {
			return nil, fmt.Errorf("create package dir %s: %w", pkgDirName, err)
		}

		binPath := filepath.Join(pkgDir, binaryName(target.GOOS))
		if err := buildBinary(ctx, repoRoot, target, opts.Version, binPath); err != nil {
			return nil, err
		}
		if err := os.WriteFile(filepath.Join(pkgDir, exampleConfig), example, 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", exampleConfig, err)
		}
		if err := copyReleaseDocs(repoRoot, pkgDir); err != nil {
			return nil, err
		}

		name := archiveName(opts.Version, target)
		archivePath := filepath.Join(outDir, name)
		pack := createTarGz
		if target.GOOS == "windows" {
			pack = createZip
		}
		if err := pack(archivePath, pkgDir); err != nil {
			return nil, fmt.Errorf("create %s: %w", name, err)
		}
		logger.Info("release_artifact", zap.Stringer("target", target), zap.String("archive", name))

		artifacts = append(artifacts, Artifact{
			Target:         target,
			ArchiveName:    name,
			ArchivePath:    archivePath,
			PackageDirName: pkgDirName,
		})
	}

	if err := writeChecksums(outDir, artifacts); err != nil {
		return nil, err
	}
	return artifacts, nil
}

func packageDirName(version string, target Target) string {
	return fmt.Sprintf("%s_%s_%s_%s", binaryBase, version, target.GOOS, target.GOARCH)
}

func archiveName(version string, target Target) string {
	if target.GOOS == "windows" {
		return packageDirName(version, target) + ".zip"
	}
	return packageDirName(version, target) + ".tar.gz"
}

func binaryName(goos string) string {
	if goos == "windows" {
		return binaryBase + ".exe"
	}
	return binaryBase
}

func goBuild(ctx context.Context, repoRoot string, target Target, version, outPath string) error {
	ldflags := fmt.Sprintf("-s -w -X %s=%s", versionVariable, version)
	cmd := exec.CommandContext(ctx, "go", "build", "-trimpath", "-ldflags", ldflags, "-o", outPath, ".")
	cmd.Dir = repoRoot
	cmd.Env = append(os.Environ(),
		"CGO_ENABLED=0",
		"GOOS="+target.GOOS,
		"GOARCH="+target.GOARCH,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("go build %s failed: %w: %s", target, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// renderExampleConfig writes the built-in defaults as a commented YAML file
// users can copy to ~/.config/screencast/config.yaml.
func renderExampleConfig() ([]byte, error) {
	body, err := yaml.Marshal(config.Default("~"))
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", exampleConfig, err)
	}
	header := "# Copy to ~/.config/screencast/config.yaml.\n" +
		"# Environment variables and command-line flags override these values.\n"
	return append([]byte(header), body...), nil
}

func copyReleaseDocs(repoRoot, pkgDir string) error {
	for _, name := range releaseDocs {
		err := copyFile(filepath.Join(repoRoot, name), filepath.Join(pkgDir, name))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("copy %s: %w", name, err)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dstFile, srcFile); err != nil {
		dstFile.Close()
		return err
	}
	return dstFile.Close()
}

// walkPackage visits every entry below dir with its slash-separated name
// relative to dir's parent, so archives unpack into a single folder.
func walkPackage(dir string, visit func(path, name string, info fs.FileInfo) error) error {
	parent := filepath.Dir(dir)
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(parent, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return visit(path, filepath.ToSlash(rel), info)
	})
}

func createTarGz(archivePath, dir string) error {
	file, err := os.Create(archivePath)
	if err != nil {
		return err
	}
	defer file.Close()

	gzw := gzip.NewWriter(file)
	tw := tar.NewWriter(gzw)

	err = walkPackage(dir, func(path, name string, info fs.FileInfo) error {
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = name
		if filepath.Base(path) == binaryBase {
			hdr.Mode = 0o755
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		return copyInto(tw, path)
	})
	if err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return gzw.Close()
}

func createZip(archivePath, dir string) error {
	file, err := os.Create(archivePath)
	if err != nil {
		return err
	}
	defer file.Close()

	zw := zip.NewWriter(file)
	err = walkPackage(dir, func(path, name string, info fs.FileInfo) error {
		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = name
		if info.IsDir() {
			header.Name += "/"
		} else {
			header.Method = zip.Deflate
		}
		w, err := zw.CreateHeader(header)
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		return copyInto(w, path)
	})
	if err != nil {
		return err
	}
	return zw.Close()
}

func copyInto(w io.Writer, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()
	_, err = io.Copy(w, src)
	return err
}

func writeChecksums(outDir string, artifacts []Artifact) error {
	sorted := append([]Artifact(nil), artifacts...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ArchiveName < sorted[j].ArchiveName
	})

	var b strings.Builder
	for _, artifact := range sorted {
		f, err := os.Open(artifact.ArchivePath)
		if err != nil {
			return fmt.Errorf("open artifact for checksum %s: %w", artifact.ArchiveName, err)
		}
		h := sha256.New()
		_, err = io.Copy(h, f)
		f.Close()
		if err != nil {
			return fmt.Errorf("hash %s: %w", artifact.ArchiveName, err)
		}
		fmt.Fprintf(&b, "%x  %s\n", h.Sum(nil), artifact.ArchiveName)
	}
	if err := os.WriteFile(filepath.Join(outDir, checksumFile), []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", checksumFile, err)
	}
	return nil
}
