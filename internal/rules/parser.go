package rules

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mohamedkhairy/stock-screener/internal/models"
	"github.com/pelletier/go-toml/v2"
)

// RuleFile is the on-disk form of a rule used by the CLI
type RuleFile struct {
	Name     string       `json:"name" toml:"name"`
	Limit    int          `json:"limit" toml:"limit"`
	Schedule string       `json:"schedule" toml:"schedule"`
	AST      *models.Node `json:"ast" toml:"ast"`
}

// ParseAST parses a JSON rule tree and checks its shape
func ParseAST(data []byte) (*models.Node, error) {
	var ast models.Node
	if err := json.Unmarshal(data, &ast); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ast: %w", err)
	}
	if err := ast.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidAST, err)
	}
	return &ast, nil
}

// ParseRuleFile decodes a rule file. Files ending in .toml are read as
// TOML, everything else as JSON. A file holding a bare tree is accepted
// too.
func ParseRuleFile(name string, data []byte) (*RuleFile, error) {
	var rf RuleFile
	isTOML := strings.EqualFold(filepath.Ext(name), ".toml")

	var err error
	if isTOML {
		err = toml.Unmarshal(data, &rf)
	} else {
		err = json.Unmarshal(data, &rf)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse rule file %s: %w", name, err)
	}

	if rf.AST == nil {
		var bare models.Node
		if isTOML {
			err = toml.Unmarshal(data, &bare)
		} else {
			err = json.Unmarshal(data, &bare)
		}
		if err == nil && bare.Type != "" {
			rf.AST = &bare
		}
	}

	if err := rf.AST.Validate(); err != nil {
		return nil, fmt.Errorf("rule file %s: %w: %v", name, models.ErrInvalidAST, err)
	}
	if rf.Schedule != "" {
		if err := ValidateSchedule(rf.Schedule); err != nil {
			return nil, err
		}
	}
	return &rf, nil
}

// LoadRuleFile reads and parses a rule file from disk, "-" meaning stdin
func LoadRuleFile(path string, stdin io.Reader) (*RuleFile, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read rule file: %w", err)
	}
	return ParseRuleFile(path, data)
}
