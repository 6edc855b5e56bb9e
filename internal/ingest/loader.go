package ingest

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	// ErrDirectoryNotFound indicates the resource directory does not exist.
	ErrDirectoryNotFound = errors.New("resource directory not found")

	// ErrUnsupportedFile indicates a file extension with no loader mapping.
	ErrUnsupportedFile = errors.New("unsupported file extension")
)

// Document is one loadable unit of source text plus its metadata. Before
// splitting a document covers a whole file (or one example trace); after
// splitting each chunk is its own Document with a distinct ChunkID.
type Document struct {
	// Source is the origin file path.
	Source string

	// Resource is the owning resource (library) name.
	Resource string

	// Content is the text stored for retrieval.
	Content string

	// EmbeddedContent is the text designated for embedding. Equal to
	// Content for plain documents; for examples it is the user prompt.
	EmbeddedContent string

	// ChunkID is the 1-based chunk index, assigned by the splitter (or
	// the example parser for .jsonl traces).
	ChunkID int

	// Fingerprint is filled in by the change detector.
	Fingerprint string
}

// LoadDirectory reads every supported file under dir into documents.
//
// Supported extensions: .txt and .md (plain documentation), .json (one
// example per file), .jsonl (conversation traces, grouped into one example
// per user turn). Any other extension fails the load so silently dropped
// corpus content is impossible. An empty directory loads zero documents.
func LoadDirectory(dir string) ([]Document, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrDirectoryNotFound, dir)
		}
		return nil, fmt.Errorf("reading directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrDirectoryNotFound, dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory %s: %w", dir, err)
	}

	resource := filepath.Base(dir)
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	var docs []Document
	for _, name := range names {
		path := filepath.Join(dir, name)
		switch strings.ToLower(filepath.Ext(name)) {
		case ".txt", ".md", ".json":
			doc, err := loadWholeFile(path, resource)
			if err != nil {
				return nil, err
			}
			docs = append(docs, doc)
		case ".jsonl":
			examples, err := loadExamples(path, resource)
			if err != nil {
				return nil, err
			}
			docs = append(docs, examples...)
		default:
			return nil, fmt.Errorf("%w: %s (add a loader mapping for %s files)",
				ErrUnsupportedFile, path, filepath.Ext(name))
		}
	}
	return docs, nil
}

// loadWholeFile reads a file as one document; the whole content is the
// text to embed until the splitter chunks it.
func loadWholeFile(path, resource string) (Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("reading %s: %w", path, err)
	}
	text := string(content)
	return Document{
		Source:          path,
		Resource:        resource,
		Content:         text,
		EmbeddedContent: text,
		ChunkID:         1,
	}, nil
}

// traceLine is one line of a .jsonl conversation trace.
type traceLine struct {
	Variant string `json:"variant"`
	Content string `json:"content"`
}

// loadExamples groups a JSONL trace file into one document per example: a
// "User" line opens an example, subsequent lines append to it. Only the
// user prompt is embedded; the stored content is the whole trace.
func loadExamples(path, resource string) ([]Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	defer f.Close()

	var examples []Document
	var current *Document
	exampleID := 1

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}

		var line traceLine
		if err := json.Unmarshal([]byte(raw), &line); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}

		if line.Variant == "User" {
			if current != nil {
				examples = append(examples, *current)
			}
			current = &Document{
				Source:          path,
				Resource:        resource,
				Content:         raw,
				EmbeddedContent: line.Content,
				ChunkID:         exampleID,
			}
			exampleID++
			continue
		}
		if current != nil {
			current.Content += "\n" + raw
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning %s: %w", path, err)
	}
	if current != nil {
		examples = append(examples, *current)
	}
	return examples, nil
}
