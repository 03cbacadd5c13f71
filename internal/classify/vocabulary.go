// Package classify scores normalized landmark sequences against a label
// vocabulary and ranks the results.
package classify

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// AliasSeparator joins labels that share one classifier output.
const AliasSeparator = "-"

// maxVocabularySize caps the size of a vocabulary file.
const maxVocabularySize = 1 << 20

// ErrUnknownLabel is returned when a label is not in the vocabulary.
var ErrUnknownLabel = errors.New("unknown label")

// Vocabulary is the ordered list of classifier labels. A label made of
// several names joined by AliasSeparator can be looked up by any of them.
type Vocabulary struct {
	labels []string
	index  map[string]int
}

// NewVocabulary builds a vocabulary from labels in classifier output order.
func NewVocabulary(labels []string) (*Vocabulary, error) {
	if len(labels) == 0 {
		return nil, errors.New("vocabulary is empty")
	}

	v := &Vocabulary{
		labels: make([]string, len(labels)),
		index:  make(map[string]int, len(labels)),
	}
	for i, label := range labels {
		label = strings.TrimSpace(label)
		if label == "" {
			return nil, fmt.Errorf("vocabulary entry %d is empty", i)
		}
		v.labels[i] = label

		names := []string{label}
		if strings.Contains(label, AliasSeparator) {
			names = append(names, strings.Split(label, AliasSeparator)...)
		}
		for _, name := range names {
			if prev, ok := v.index[name]; ok && prev != i {
				return nil, fmt.Errorf("label %q at %d already defined at %d", name, i, prev)
			}
			v.index[name] = i
		}
	}
	return v, nil
}

// LoadVocabulary reads a vocabulary file: a JSON array of strings when the
// file ends in .json, otherwise one label per line. Blank lines and lines
// starting with # are skipped.
func LoadVocabulary(path string) (*Vocabulary, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat vocabulary: %w", err)
	}
	if info.Size() > maxVocabularySize {
		return nil, fmt.Errorf("vocabulary file too large: %d bytes (max %d)", info.Size(), maxVocabularySize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vocabulary: %w", err)
	}

	var labels []string
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := json.Unmarshal(data, &labels); err != nil {
			return nil, fmt.Errorf("parse vocabulary: %w", err)
		}
	} else {
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			labels = append(labels, line)
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read vocabulary: %w", err)
		}
	}

	return NewVocabulary(labels)
}

// Len returns the number of classifier outputs.
func (v *Vocabulary) Len() int {
	return len(v.labels)
}

// Label returns the label of output i.
func (v *Vocabulary) Label(i int) string {
	return v.labels[i]
}

// Labels returns a copy of the labels in output order.
func (v *Vocabulary) Labels() []string {
	return append([]string(nil), v.labels...)
}

// Index returns the output index for a label or one of its aliases.
func (v *Vocabulary) Index(name string) (int, error) {
	i, ok := v.index[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownLabel, name)
	}
	return i, nil
}

// Aliases returns the names output i can be looked up by, excluding the
// joined label itself. It is empty for labels without aliases.
func (v *Vocabulary) Aliases(i int) []string {
	if !strings.Contains(v.labels[i], AliasSeparator) {
		return nil
	}
	return strings.Split(v.labels[i], AliasSeparator)
}
