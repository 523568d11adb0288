package config

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/pcastell/mend/internal/models"
)

// TaskFile is the parsed task.toml definition. A task directory holds
// task.toml plus any files it references; the directory name is the
// task name.
type TaskFile struct {
	Version string `toml:"version"`
	// Statement is the inline problem statement. StatementFile names a
	// file in the task directory instead; exactly one must be set.
	Statement     string `toml:"statement,omitempty"`
	StatementFile string `toml:"statement_file,omitempty"`
	// TestCases is source appended to each candidate before execution.
	TestCases     string `toml:"test_cases,omitempty"`
	TestCasesFile string `toml:"test_cases_file,omitempty"`

	Predicate *PredicateFile `toml:"predicate,omitempty"`
}

// PredicateFile is the optional machine-checkable success condition.
type PredicateFile struct {
	ExpectedStdout *string `toml:"expected_stdout,omitempty"`
	ExitStatus     *int    `toml:"exit_status,omitempty"`
}

// LoadTask loads a task definition from a directory path.
func LoadTask(taskPath string) (*models.Task, error) {
	absPath, err := filepath.Abs(taskPath)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path: %w", err)
	}
	return LoadTaskFS(os.DirFS(absPath), filepath.Base(absPath))
}

// LoadTaskFS loads a task definition from a filesystem rooted at the
// task directory.
func LoadTaskFS(fsys fs.FS, name string) (*models.Task, error) {
	data, err := fs.ReadFile(fsys, "task.toml")
	if err != nil {
		return nil, fmt.Errorf("reading task.toml: %w", err)
	}

	var tf TaskFile
	if _, err := toml.Decode(string(data), &tf); err != nil {
		return nil, &models.ConfigurationError{Field: "task.toml", Reason: err.Error()}
	}

	statement, err := resolveText(fsys, tf.Statement, tf.StatementFile, "statement")
	if err != nil {
		return nil, err
	}
	if statement == "" {
		return nil, &models.ConfigurationError{Field: "statement", Reason: "task defines no problem statement"}
	}

	testCases, err := resolveText(fsys, tf.TestCases, tf.TestCasesFile, "test_cases")
	if err != nil {
		return nil, err
	}

	task := &models.Task{
		Name:      name,
		Statement: statement,
		TestCases: testCases,
	}
	if tf.Predicate != nil {
		task.Predicate = &models.SuccessPredicate{
			ExpectedStdout: tf.Predicate.ExpectedStdout,
			ExitStatus:     tf.Predicate.ExitStatus,
		}
	}

	return task, nil
}

// resolveText returns the inline value or the referenced file's
// contents. Setting both is a configuration error.
func resolveText(fsys fs.FS, inline, file, field string) (string, error) {
	if inline != "" && file != "" {
		return "", &models.ConfigurationError{
			Field:  field,
			Reason: fmt.Sprintf("cannot set both %s and %s_file", field, field),
		}
	}
	if file == "" {
		return inline, nil
	}
	data, err := fs.ReadFile(fsys, file)
	if err != nil {
		return "", &models.ConfigurationError{
			Field:  field + "_file",
			Reason: fmt.Sprintf("reading %s: %v", file, err),
		}
	}
	return strings.TrimRight(string(data), "\n") + "\n", nil
}
