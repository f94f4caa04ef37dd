package tap

import (
	"fmt"
	"os/exec"
	"strings"
)

// ifconfigRunner invokes the configurable platform tool (spec.md §4.3,
// §9 "Configurable platform tool") as a child process. Kept as a thin,
// swappable type rather than a package-level function so tests can stub
// it out, mirroring the teacher's InterfaceConfigurator
// (shared/networking/ifconfig.go) shape without needing OS privileges to
// run the engine end to end.
type ifconfigRunner struct {
	path string
}

func newIfconfigRunner(path string) ifconfigRunner {
	if path == "" {
		path = "ifconfig"
	}
	return ifconfigRunner{path: path}
}

func (r ifconfigRunner) run(args ...string) error {
	cmd := exec.Command(r.path, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %s: %w (output: %s)", r.path, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

// ipv4String renders addr as canonical dotted decimal. The original C++
// source used "%02hhu.%02hhu.%02hhu.%02hhu", which is non-canonical for
// octets >= 100 (spec.md §9 open question, resolved here in favor of
// canonical rendering).
func ipv4String(addr [4]byte) string {
	return fmt.Sprintf("%d.%d.%d.%d", addr[0], addr[1], addr[2], addr[3])
}

func macString(mac [6]byte) string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x",
		mac[0], mac[1], mac[2], mac[3], mac[4], mac[5])
}
