package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// DecodeResources decodes a JSON document holding a single resource, a
// Bundle (entry[].resource), or an array of resources. Entries without a
// resourceType are skipped. Numbers decode as json.Number so integer codes
// keep every digit.
func DecodeResources(data []byte) ([]map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode fhir document: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("decode fhir document: unexpected data after top-level value")
	}
	return flattenResources(doc), nil
}

func flattenResources(doc any) []map[string]any {
	switch v := doc.(type) {
	case []any:
		var out []map[string]any
		for _, el := range v {
			out = append(out, flattenResources(el)...)
		}
		return out
	case map[string]any:
		rt, _ := v["resourceType"].(string)
		if rt == "Bundle" {
			entries, _ := v["entry"].([]any)
			var out []map[string]any
			for _, e := range entries {
				if entry, ok := e.(map[string]any); ok {
					out = append(out, flattenResources(entry["resource"])...)
				}
			}
			return out
		}
		if rt == "" {
			return nil
		}
		return []map[string]any{v}
	default:
		return nil
	}
}

// DecodeNDJSON decodes one resource per line. Blank lines are ignored.
func DecodeNDJSON(r io.Reader) ([]map[string]any, error) {
	var out []map[string]any
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		res, err := DecodeResources([]byte(text))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, res...)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan ndjson: %w", err)
	}
	return out, nil
}

// ReadFHIRDir reads every .json and .ndjson file under dir. The first path
// segment below dir names the person; files directly in dir use their file
// name without extension. The record category is the resourceType.
func ReadFHIRDir(ctx context.Context, dir string, logger zerolog.Logger) ([]Record, error) {
	var records []Record
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".json" && ext != ".ndjson" {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		person := personFromPath(rel)

		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()

		var resources []map[string]any
		if ext == ".ndjson" {
			resources, err = DecodeNDJSON(f)
		} else {
			var data []byte
			data, err = io.ReadAll(f)
			if err == nil {
				resources, err = DecodeResources(data)
			}
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		for _, res := range resources {
			rt, _ := res["resourceType"].(string)
			records = append(records, Record{Person: person, Category: rt, Origin: OriginFHIR, Data: res})
		}
		logger.Debug().Str("file", rel).Str("person", person).Int("resources", len(resources)).Msg("read fhir file")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func personFromPath(rel string) string {
	rel = filepath.ToSlash(rel)
	if i := strings.IndexByte(rel, '/'); i >= 0 {
		return rel[:i]
	}
	return strings.TrimSuffix(rel, filepath.Ext(rel))
}
