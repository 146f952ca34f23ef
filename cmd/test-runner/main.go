package main

import (
	"os"
	"os/exec"
)

// dir is the module root the integration suite runs from. It defaults
// to the current working directory, overridable for container images
// that check the module out somewhere other than the runner's cwd.
func dir() string {
	if d := os.Getenv("TEST_RUNNER_DIR"); d != "" {
		return d
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

func main() {
	cmd := exec.Command("go", "test", "./internal/integration", "-v")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Dir = dir()

	if err := cmd.Run(); err != nil {
		os.Exit(1)
	}
}
