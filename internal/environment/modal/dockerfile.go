package modal

import (
	"fmt"
	"strings"
)

// imageInstructions are replayed onto the base image. Anything else that does not
// need a build context is ignored.
var imageInstructions = map[string]bool{
	"RUN":     true,
	"ENV":     true,
	"ARG":     true,
	"WORKDIR": true,
	"USER":    true,
	"LABEL":   true,
}

// logicalLines joins backslash continuations and drops blank lines and comments.
func logicalLines(content string) []string {
	var lines []string
	var cur strings.Builder
	for _, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		if body, ok := strings.CutSuffix(line, "\\"); ok {
			cur.WriteString(strings.TrimSpace(body))
			continue
		}
		cur.WriteString(line)
		lines = append(lines, cur.String())
		cur.Reset()
	}
	if cur.Len() > 0 {
		lines = append(lines, cur.String())
	}
	return lines
}

// parseDockerfile returns the last FROM image and the instructions to layer on top
// of it. Modal images have no build context, so COPY and ADD are errors.
func parseDockerfile(content string) (baseImage string, commands []string, err error) {
	for _, line := range logicalLines(content) {
		keyword, rest, _ := strings.Cut(line, " ")
		keyword = strings.ToUpper(keyword)
		switch {
		case keyword == "FROM":
			if fields := strings.Fields(rest); len(fields) > 0 {
				baseImage = fields[0]
			}
		case keyword == "COPY" || keyword == "ADD":
			return "", nil, fmt.Errorf("COPY and ADD instructions are not supported: %s", line)
		case imageInstructions[keyword]:
			commands = append(commands, line)
		}
	}

	if baseImage == "" {
		return "", nil, fmt.Errorf("no FROM instruction found in Dockerfile")
	}
	return baseImage, commands, nil
}
