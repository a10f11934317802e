// Package meta parses the ==UserScript== metadata block of a userscript.
package meta

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

var (
	blockRe = regexp.MustCompile(`(?s)//[ \t]*==UserScript==.*?//[ \t]*==/UserScript==`)
	ruleRe  = regexp.MustCompile(`(?m)^[ \t]*//[ \t]*@([\w:-]+)[ \t]+(.+?)[ \t]*$`)
)

// ErrNoMetaBlock is returned when code contains no metadata block.
var ErrNoMetaBlock = errors.New("no ==UserScript== metadata block found")

// Block is the parsed metadata of a script. Fields keeps every key with its
// first value; repeated keys (@require, @resource and friends) accumulate in
// Values.
type Block struct {
	Name        string
	Version     string
	DownloadURL string
	UpdateURL   string
	Fields      map[string]string
	Values      map[string][]string
}

// Parse extracts the first metadata block from code.
func Parse(code string) (*Block, error) {
	raw := blockRe.FindString(code)
	if raw == "" {
		return nil, ErrNoMetaBlock
	}
	block := &Block{
		Fields: make(map[string]string),
		Values: make(map[string][]string),
	}
	for _, match := range ruleRe.FindAllStringSubmatch(raw, -1) {
		key, value := match[1], strings.TrimSpace(match[2])
		if _, seen := block.Fields[key]; !seen {
			block.Fields[key] = value
		}
		block.Values[key] = append(block.Values[key], value)
	}
	block.Name = block.Fields["name"]
	block.Version = block.Fields["version"]
	block.DownloadURL = block.Fields["downloadURL"]
	block.UpdateURL = block.Fields["updateURL"]
	return block, nil
}

// Strip returns code with its metadata block removed. Code without a block
// is returned unchanged. The remainder tells a metadata-only descriptor
// apart from a full script served in answer to a metadata query.
func Strip(code string) string {
	loc := blockRe.FindStringIndex(code)
	if loc == nil {
		return code
	}
	return code[:loc[0]] + code[loc[1]:]
}
