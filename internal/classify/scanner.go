package classify

import (
	"bufio"
	"embed"
	"strings"
)

//go:embed scandata/*.txt
var scanData embed.FS

var (
	badUserAgents []string
	probePaths    []string
)

func init() {
	badUserAgents = loadLines("scandata/bad_user_agents.txt")
	probePaths = loadLines("scandata/probe_paths.txt")
}

func loadLines(name string) []string {
	f, err := scanData.Open(name)
	if err != nil {
		return nil
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, strings.ToLower(line))
	}
	return out
}

// matchesScannerUA reports whether userAgent contains a known scanner-tool
// substring (PEN_TEST_TOOL signal, spec §4.1).
func matchesScannerUA(userAgent string) bool {
	ua := strings.ToLower(userAgent)
	for _, needle := range badUserAgents {
		if strings.Contains(ua, needle) {
			return true
		}
	}
	return false
}

// matchesProbePath reports whether route contains a known reconnaissance /
// exploit-probe path fragment.
func matchesProbePath(route string) bool {
	r := strings.ToLower(route)
	for _, needle := range probePaths {
		if strings.Contains(r, needle) {
			return true
		}
	}
	return false
}
