// Package launcher writes double-click start scripts for the provisioned
// application.
package launcher

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"
)

// Shortcut describes one start script.
type Shortcut struct {
	// Name is the file name without extension.
	Name       string
	Title      string
	ProjectDir string
	URL        string
	Env        map[string]string
	Command    string
	Args       []string
}

type envPair struct {
	Key   string
	Value string
}

type scriptData struct {
	Shortcut
	Pairs   []envPair
	CmdLine string
}

var batchTemplate = template.Must(template.New("bat").Parse(`@echo off
cd /d "{{.ProjectDir}}"
echo Starting {{.Title}}...
{{- if .URL}}
echo Web interface will be available at: {{.URL}}
{{- end}}
echo Press Ctrl+C to stop the server
echo.
{{- range .Pairs}}
set "{{.Key}}={{.Value}}"
{{- end}}
call {{.CmdLine}}
pause
`))

var shellTemplate = template.Must(template.New("sh").Parse(`#!/bin/sh
cd "{{.ProjectDir}}" || exit 1
echo "Starting {{.Title}}..."
{{- if .URL}}
echo "Web interface will be available at: {{.URL}}"
{{- end}}
echo "Press Ctrl+C to stop the server"
{{- range .Pairs}}
export {{.Key}}={{.Value}}
{{- end}}
exec {{.CmdLine}}
`))

// Write renders every shortcut into dir for goos and returns the written paths.
func Write(dir, goos string, shortcuts []Shortcut) ([]string, error) {
	paths := make([]string, 0, len(shortcuts))
	for _, sc := range shortcuts {
		if sc.Name == "" || sc.Command == "" {
			return paths, fmt.Errorf("shortcut requires a name and command")
		}
		data := scriptData{Shortcut: sc}

		tpl, ext, mode := shellTemplate, ".sh", os.FileMode(0o700)
		data.CmdLine = shellLine(sc.Command, sc.Args)
		data.Pairs = pairs(sc.Env, quoteAlways)
		if goos == "windows" {
			tpl, ext, mode = batchTemplate, ".bat", 0o600
			data.CmdLine = batchLine(sc.Command, sc.Args)
			data.Pairs = pairs(sc.Env, func(v string) string { return strings.ReplaceAll(v, "%", "%%") })
		}

		var buf bytes.Buffer
		if err := tpl.Execute(&buf, data); err != nil {
			return paths, fmt.Errorf("render %s: %w", sc.Name, err)
		}
		content := buf.Bytes()
		if goos == "windows" {
			content = bytes.ReplaceAll(content, []byte("\n"), []byte("\r\n"))
		}

		path := filepath.Join(dir, sc.Name+ext)
		if err := os.WriteFile(path, content, mode); err != nil {
			return paths, fmt.Errorf("write %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func pairs(env map[string]string, escape func(string) string) []envPair {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]envPair, 0, len(keys))
	for _, k := range keys {
		out = append(out, envPair{Key: k, Value: escape(env[k])})
	}
	return out
}

func shellLine(command string, args []string) string {
	parts := []string{shellQuote(command)}
	for _, a := range args {
		parts = append(parts, shellQuote(a))
	}
	return strings.Join(parts, " ")
}

func batchLine(command string, args []string) string {
	parts := []string{command}
	for _, a := range args {
		if strings.ContainsAny(a, " \t&|<>^") {
			a = `"` + a + `"`
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

func shellQuote(value string) string {
	if value == "" {
		return "''"
	}
	if !strings.ContainsAny(value, " \t\n'\"$`\\|&;<>()*?[]#~") {
		return value
	}
	return quoteAlways(value)
}

func quoteAlways(value string) string {
	return "'" + strings.ReplaceAll(value, "'", `'"'"'`) + "'"
}
