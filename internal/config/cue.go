package config

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
)

// LoadError is a problem in a CUE collection definition.
type LoadError struct {
	Collection string
	Message    string
	Pos        token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	where := ""
	if e.Pos.IsValid() {
		where = fmt.Sprintf("%s:%d:%d: ", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column())
	}
	if e.Collection != "" {
		return fmt.Sprintf("%scollection %q: %s", where, e.Collection, e.Message)
	}
	return where + e.Message
}

// LoadCollections reads every CUE file in dir and returns the collections
// declared under the top-level "collection" struct:
//
//	collection: users: {
//		primary_keys: []
//		lookup_keys: ["email"]
//	}
func LoadCollections(dir string) (map[string]CollectionConfig, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &LoadError{Message: fmt.Sprintf("collections directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &LoadError{Message: fmt.Sprintf("not a directory: %s", dir)}
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.cue"))
	if err != nil {
		return nil, &LoadError{Message: fmt.Sprintf("scanning %s: %v", dir, err)}
	}
	if len(files) == 0 {
		return nil, &LoadError{Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}
	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, &LoadError{Message: fmt.Sprintf("building CUE value: %v", err)}
	}

	out := map[string]CollectionConfig{}
	collections := value.LookupPath(cue.ParsePath("collection"))
	if !collections.Exists() {
		return out, nil
	}
	iter, err := collections.Fields()
	if err != nil {
		return nil, &LoadError{Message: fmt.Sprintf("collection must be a struct: %v", err), Pos: collections.Pos()}
	}
	for iter.Next() {
		name := iter.Label()
		def, err := compileCollection(name, iter.Value())
		if err != nil {
			return nil, err
		}
		out[name] = def
	}
	return out, nil
}

func compileCollection(name string, v cue.Value) (CollectionConfig, error) {
	var def CollectionConfig
	var err error
	if def.PrimaryKeys, err = stringList(name, v, "primary_keys"); err != nil {
		return def, err
	}
	if def.LookupKeys, err = stringList(name, v, "lookup_keys"); err != nil {
		return def, err
	}
	return def, nil
}

// stringList reads an optional list of strings at field.
func stringList(collection string, v cue.Value, field string) ([]string, error) {
	lv := v.LookupPath(cue.ParsePath(field))
	if !lv.Exists() {
		return nil, nil
	}
	iter, err := lv.List()
	if err != nil {
		return nil, &LoadError{Collection: collection, Message: field + " must be a list of strings", Pos: lv.Pos()}
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, &LoadError{Collection: collection, Message: field + " must be a list of strings", Pos: iter.Value().Pos()}
		}
		out = append(out, s)
	}
	return out, nil
}
