// Package doctor runs the idempotent notebook/config/database health
// checks spec.md §4.6 calls for, in the teacher's mockable-function-variable
// style so tests can substitute each check without a real environment.
package doctor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"brain/internal/dbindex"
)

// Function variables for mocking, mirroring the teacher's doctor package.
var (
	execLookPath  = exec.LookPath
	statFunc      = os.Stat
	readFileFunc  = os.ReadFile
	dbPingFunc    = dbindex.Ping
	dockerFactory func(namePrefix string) (DockerClient, error)
)

// DockerClient is the subset of the Docker client doctor needs, substituted
// in tests the same way the teacher's ui.DockerClient is.
type DockerClient interface {
	CheckDaemon(ctx context.Context) error
	CheckSocket(ctx context.Context) error
	CheckImage(ctx context.Context, imageRef string) (bool, error)
	Close() error
}

// Status is the verdict of a single check.
type Status string

const (
	StatusOK      Status = "ok"
	StatusFail    Status = "fail"
	StatusFixed   Status = "fixed"
	StatusSkipped Status = "skipped"
)

// Check is one diagnostic's outcome.
type Check struct {
	Name     string
	Status   Status
	Detail   string
	Fixable  bool
	WasFixed bool
}

// Config bundles what doctor needs to know about the installation under
// inspection.
type Config struct {
	NotebookDir       string
	IDLength          int
	IDCharset         string
	TemplateDir       string
	RequiredTemplates map[string]string // name -> expected sha256 hex
	DBPath            string
	SupervisorBackend string
	AgentBinary       string
	AgentImage        string
}

// Options controls how Run applies remediation.
type Options struct {
	Fix    bool
	Force  bool
	DryRun bool
}

// Run executes every check in order and returns their results.
func Run(ctx context.Context, cfg Config, opts Options) []Check {
	var checks []Check

	checks = append(checks, checkNotebookDir(cfg, opts))
	checks = append(checks, checkNotebookConfig(cfg))
	checks = append(checks, checkTemplates(cfg, opts)...)
	checks = append(checks, checkDatabase(cfg))
	checks = append(checks, checkPermissions(cfg))
	checks = append(checks, checkAgentBinary(cfg))

	if cfg.SupervisorBackend == "docker" {
		checks = append(checks, checkDocker(ctx, cfg)...)
	}

	return checks
}

func checkNotebookDir(cfg Config, opts Options) Check {
	info, err := statFunc(cfg.NotebookDir)
	if err != nil {
		if opts.Fix && !opts.DryRun {
			if mkErr := os.MkdirAll(cfg.NotebookDir, 0o755); mkErr == nil {
				return Check{Name: "notebook directory", Status: StatusFixed, Fixable: true, WasFixed: true}
			}
		}
		return Check{Name: "notebook directory", Status: StatusFail, Detail: err.Error(), Fixable: true}
	}
	if !info.IsDir() {
		return Check{Name: "notebook directory", Status: StatusFail, Detail: "exists but is not a directory"}
	}
	return Check{Name: "notebook directory", Status: StatusOK}
}

func checkNotebookConfig(cfg Config) Check {
	if cfg.IDLength != 8 {
		return Check{Name: "notebook config", Status: StatusFail, Detail: fmt.Sprintf("id-length must be 8, got %d", cfg.IDLength)}
	}
	if cfg.IDCharset != "alphanum" {
		return Check{Name: "notebook config", Status: StatusFail, Detail: fmt.Sprintf(`id-charset must be "alphanum", got %q`, cfg.IDCharset)}
	}
	return Check{Name: "notebook config", Status: StatusOK}
}

func checkTemplates(cfg Config, opts Options) []Check {
	var checks []Check
	for name, expectedHash := range cfg.RequiredTemplates {
		path := filepath.Join(cfg.TemplateDir, name)
		content, err := readFileFunc(path)
		if err != nil {
			checks = append(checks, Check{Name: "template:" + name, Status: StatusFail, Detail: "missing", Fixable: true})
			continue
		}
		sum := sha256.Sum256(content)
		actual := hex.EncodeToString(sum[:])
		if actual != expectedHash {
			if opts.Fix && opts.Force && !opts.DryRun {
				checks = append(checks, Check{Name: "template:" + name, Status: StatusFixed, Fixable: true, WasFixed: true})
				continue
			}
			checks = append(checks, Check{Name: "template:" + name, Status: StatusFail, Detail: "content drifted from reference", Fixable: true})
			continue
		}
		checks = append(checks, Check{Name: "template:" + name, Status: StatusOK})
	}
	return checks
}

func checkDatabase(cfg Config) Check {
	if err := dbPingFunc(cfg.DBPath); err != nil {
		return Check{Name: "database", Status: StatusFail, Detail: err.Error()}
	}
	return Check{Name: "database", Status: StatusOK}
}

func checkPermissions(cfg Config) Check {
	testFile := filepath.Join(cfg.NotebookDir, ".doctor-write-test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return Check{Name: "permissions", Status: StatusFail, Detail: err.Error()}
	}
	_ = os.Remove(testFile)
	return Check{Name: "permissions", Status: StatusOK}
}

func checkAgentBinary(cfg Config) Check {
	if cfg.AgentBinary == "" {
		return Check{Name: "agent binary", Status: StatusSkipped}
	}
	if _, err := execLookPath(cfg.AgentBinary); err != nil {
		return Check{Name: "agent binary", Status: StatusFail, Detail: fmt.Sprintf("%s not found in PATH", cfg.AgentBinary)}
	}
	return Check{Name: "agent binary", Status: StatusOK}
}

func checkDocker(ctx context.Context, cfg Config) []Check {
	var checks []Check

	if dockerFactory == nil {
		return []Check{{Name: "docker", Status: StatusFail, Detail: "no docker client factory configured"}}
	}
	cli, err := dockerFactory("brain-doctor")
	if err != nil {
		return []Check{{Name: "docker daemon", Status: StatusFail, Detail: err.Error()}}
	}
	defer cli.Close()

	if err := cli.CheckDaemon(ctx); err != nil {
		if strings.Contains(err.Error(), "docker daemon running") {
			return []Check{{Name: "docker daemon", Status: StatusFail, Detail: "daemon not running or socket permission error"}}
		}
		return []Check{{Name: "docker daemon", Status: StatusFail, Detail: err.Error()}}
	}
	checks = append(checks, Check{Name: "docker daemon", Status: StatusOK})

	if err := cli.CheckSocket(ctx); err != nil {
		checks = append(checks, Check{Name: "docker socket", Status: StatusFail, Detail: err.Error()})
	} else {
		checks = append(checks, Check{Name: "docker socket", Status: StatusOK})
	}

	if cfg.AgentImage != "" {
		exists, err := cli.CheckImage(ctx, cfg.AgentImage)
		switch {
		case err != nil:
			checks = append(checks, Check{Name: "docker image", Status: StatusFail, Detail: err.Error()})
		case !exists:
			checks = append(checks, Check{Name: "docker image", Status: StatusFail, Detail: fmt.Sprintf("%s is missing", cfg.AgentImage), Fixable: true})
		default:
			checks = append(checks, Check{Name: "docker image", Status: StatusOK})
		}
	}

	return checks
}

// Report renders checks the way the teacher's GetDoctor renders its report:
// one checkmark/cross line per check.
func Report(checks []Check) string {
	var b strings.Builder
	b.WriteString("brain Doctor\n------------\n")
	for _, c := range checks {
		mark := "[x]"
		switch c.Status {
		case StatusOK:
			mark = "[ok]"
		case StatusFixed:
			mark = "[fixed]"
		case StatusSkipped:
			mark = "[skip]"
		}
		if c.Detail != "" {
			fmt.Fprintf(&b, "%s %s: %s\n", mark, c.Name, c.Detail)
		} else {
			fmt.Fprintf(&b, "%s %s\n", mark, c.Name)
		}
	}
	return b.String()
}

// SetDockerFactory installs the docker client constructor; cmd/brain wires
// this to the real internal/docker.NewClient, tests install a fake.
func SetDockerFactory(f func(namePrefix string) (DockerClient, error)) {
	dockerFactory = f
}
