// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrvm

// AssemblyInfo is a resolved Assembly table row (§4.7).
type AssemblyInfo struct {
	Name  string
	Index int
	Row   AssemblyRow
}

// ClassInfo is a resolved TypeDef row plus its materialized method list
// (§4.7).
type ClassInfo struct {
	Name      string
	Namespace string
	Index     int
	Row       TypeDefRow
	Methods   []*MethodInfo
}

// MethodInfo is a resolved MethodDef row. Its body is parsed eagerly at
// class-resolution time unless Options.Fast is set, in which case Body
// parses and caches it lazily on first call (§4.10 ambient
// configuration).
type MethodInfo struct {
	Name  string
	Index int
	RVA   uint32
	Row   MethodDefRow

	img     *DllImage
	body    *MethodBody
	bodyErr error
}

// Body returns the decoded method body, parsing and caching it on first
// access (§4.8).
func (m *MethodInfo) Body() (*MethodBody, error) {
	if m.body != nil {
		return m.body, nil
	}
	if m.bodyErr != nil {
		return nil, m.bodyErr
	}
	maxSize := uint32(MaxDefaultMethodBodySize)
	if m.img.opts != nil && m.img.opts.MaxMethodBodySize != 0 {
		maxSize = m.img.opts.MaxMethodBodySize
	}
	body, err := m.img.parseMethodBody(m.RVA, maxSize)
	if err != nil {
		m.bodyErr = err
		return nil, err
	}
	m.body = body
	return body, nil
}

// ReflectionInfo is the lazily-built, cached view of an image's
// metadata tables: assemblies, classes, and their methods (§4.7). All
// results are shared references — repeated lookups for the same key
// return the same cached object.
type ReflectionInfo struct {
	img *DllImage

	assemblies map[string]*AssemblyInfo
	classes    map[string]*ClassInfo
}

func newReflectionInfo(img *DllImage) *ReflectionInfo {
	return &ReflectionInfo{
		img:        img,
		assemblies: make(map[string]*AssemblyInfo),
		classes:    make(map[string]*ClassInfo),
	}
}

// GetAssembly performs a linear scan of the Assembly table by interned
// name (§4.7).
func (r *ReflectionInfo) GetAssembly(name string) (*AssemblyInfo, error) {
	if a, ok := r.assemblies[name]; ok {
		return a, nil
	}
	ts := r.img.CLI.Tables
	if ts == nil {
		return nil, &NotFoundError{Kind: "assembly", Name: name}
	}
	for i, row := range ts.Assemblies {
		if row.Name != name {
			continue
		}
		a := &AssemblyInfo{Name: row.Name, Index: i, Row: row}
		r.assemblies[name] = a
		return a, nil
	}
	return nil, &NotFoundError{Kind: "assembly", Name: name}
}

// GetClass performs a linear scan of TypeDef by name; on a hit it
// computes the half-open method range `[method_list-1, end)` — `end` is
// the next row's `method_list-1`, or the MethodDef row count for the
// last TypeDef row — and materializes a MethodInfo per row in that
// range (§4.7).
func (r *ReflectionInfo) GetClass(name string) (*ClassInfo, error) {
	if c, ok := r.classes[name]; ok {
		return c, nil
	}
	ts := r.img.CLI.Tables
	if ts == nil {
		return nil, &NotFoundError{Kind: "class", Name: name}
	}
	for i, row := range ts.TypeDefs {
		if row.TypeName != name {
			continue
		}

		// MethodList is a 1-based RID; a malformed row carrying 0 is a null
		// reference, not row 1, and would underflow start to -1 and panic
		// on the MethodDefs index below. Treat it as an empty method range.
		start := 0
		if row.MethodList != 0 {
			start = int(row.MethodList) - 1
		}
		end := start
		if i == len(ts.TypeDefs)-1 {
			end = len(ts.MethodDefs)
		} else if next := ts.TypeDefs[i+1].MethodList; next != 0 {
			end = int(next) - 1
		}
		if start > len(ts.MethodDefs) {
			start = len(ts.MethodDefs)
		}
		if end > len(ts.MethodDefs) {
			end = len(ts.MethodDefs)
		}
		if end < start {
			end = start
		}

		methods := make([]*MethodInfo, 0, end-start)
		for mi := start; mi < end; mi++ {
			mrow := ts.MethodDefs[mi]
			m := &MethodInfo{Name: mrow.Name, Index: mi, RVA: mrow.RVA, Row: mrow, img: r.img}
			if r.img.opts == nil || !r.img.opts.Fast {
				m.Body() // eagerly materialize; parse errors surface on later Body() calls
			}
			methods = append(methods, m)
		}

		ci := &ClassInfo{Name: row.TypeName, Namespace: row.TypeNamespace, Index: i, Row: row, Methods: methods}
		r.classes[name] = ci
		return ci, nil
	}
	return nil, &NotFoundError{Kind: "class", Name: name}
}

// GetMethod performs a linear scan of the class's method list by
// interned name (§4.7).
func (r *ReflectionInfo) GetMethod(class *ClassInfo, name string) (*MethodInfo, error) {
	for _, m := range class.Methods {
		if m.Name == name {
			return m, nil
		}
	}
	return nil, &NotFoundError{Kind: "method", Name: name}
}
