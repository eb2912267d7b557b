package problem

import "time"

// Seed returns a store preloaded with a couple of battle-ready problems,
// enough to run the server without the challenge service attached.
func Seed() *MemoryStore {
	s := NewMemoryStore()
	s.Put(Problem{
		ID:    "double-it",
		Title: "Double It",
		TestCases: []TestCase{
			{Input: "1\n", Expected: "2\n"},
			{Input: "3\n", Expected: "6\n"},
			{Input: "21\n", Expected: "42\n"},
		},
		Languages: []string{"python", "javascript", "go"},
		StarterCode: map[string]string{
			"python":     "n = int(input())\n# print the answer\n",
			"javascript": "const n = parseInt(require('fs').readFileSync(0, 'utf8'));\n// print the answer\n",
		},
		TimeLimit: 2 * time.Second,
	})
	s.Put(Problem{
		ID:    "echo",
		Title: "Echo",
		TestCases: []TestCase{
			{Input: "hello\n", Expected: "hello\n"},
			{Input: "battle\n", Expected: "battle\n"},
		},
		Languages: []string{"python", "javascript", "go"},
		TimeLimit: 2 * time.Second,
	})
	return s
}
