package judge

import "strings"

// outputsMatch compares program output to the expected output with line
// endings unified and surrounding whitespace stripped per line and whole.
// Interior spacing must match exactly.
func outputsMatch(got, want string) bool {
	return normalize(got) == normalize(want)
}

func normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}
