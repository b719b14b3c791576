// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrvm

// Load parses an in-memory managed-assembly image, the `load(bytes)`
// operation of §6.
func Load(data []byte, opts *Options) (*DllImage, error) {
	img, err := NewBytes(data, opts)
	if err != nil {
		return nil, err
	}
	if err := img.Parse(); err != nil {
		return nil, err
	}
	return img, nil
}

// OpenClass resolves a class by name, the `open_class(image, name)`
// operation of §6.
func OpenClass(img *DllImage, name string) (*ClassInfo, error) {
	return img.Reflection().GetClass(name)
}

// OpenMethod resolves a method by name within a class, the
// `open_method(class, name)` operation of §6.
func OpenMethod(class *ClassInfo, name string) (*MethodInfo, error) {
	for _, m := range class.Methods {
		if m.Name == name {
			return m, nil
		}
	}
	return nil, &NotFoundError{Kind: "method", Name: name}
}

// Execute runs a method body to completion, the `execute(method, args)`
// operation of §6. stepLimit bounds instruction count; a caller-supplied
// zero falls back to the image's configured Options.StepLimit (itself
// zero meaning unbounded, §4.11).
func Execute(method *MethodInfo, args []Data, stepLimit uint64) (*Data, error) {
	body, err := method.Body()
	if err != nil {
		return nil, &ExecError{Method: method.Name, Err: err}
	}
	if stepLimit == 0 && method.img.opts != nil {
		stepLimit = method.img.opts.StepLimit
	}
	result, err := exec(body, args, stepLimit)
	if err != nil {
		return nil, &ExecError{Method: method.Name, Err: err}
	}
	return result, nil
}
