// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package ingestion

import (
	sitter "github.com/smacker/go-tree-sitter"
)

// =============================================================================
// STRUCTURAL EXTRACTION
// =============================================================================

var tsDeclKinds = map[string]NodeKind{
	"function_declaration":           KindFunction,
	"generator_function_declaration": KindFunction,
	"class_declaration":              KindClass,
	"abstract_class_declaration":     KindClass,
	"interface_declaration":          KindType,
	"type_alias_declaration":         KindType,
	"enum_declaration":               KindType,
}

var javaDeclKinds = map[string]NodeKind{
	"class_declaration":           KindClass,
	"interface_declaration":       KindType,
	"enum_declaration":            KindType,
	"record_declaration":          KindType,
	"annotation_type_declaration": KindType,
}

// detectStructuralTS records named top-level declarations, exported or not.
// Function-valued const bindings count as functions.
func detectStructuralTS(f *SourceFile) []DocumentationNode {
	st := f.Tree()
	if st == nil {
		return nil
	}
	var nodes []DocumentationNode
	for i := 0; i < int(st.Root.NamedChildCount()); i++ {
		decl := st.Root.NamedChild(i)
		exported := false
		if decl.Type() == "export_statement" {
			exported = true
			if decl = decl.ChildByFieldName("declaration"); decl == nil {
				continue
			}
		}

		if kind, ok := tsDeclKinds[decl.Type()]; ok {
			if name := decl.ChildByFieldName("name"); name != nil {
				nodes = append(nodes, declNode(f, decl, kind, st.Text(name), exported))
			}
			continue
		}

		if decl.Type() == "lexical_declaration" || decl.Type() == "variable_declaration" {
			for _, v := range childrenOfType(decl, "variable_declarator") {
				name, value := v.ChildByFieldName("name"), v.ChildByFieldName("value")
				if name == nil || value == nil || name.Type() != "identifier" || !isFunctionValue(value) {
					continue
				}
				nodes = append(nodes, declNode(f, v, KindFunction, st.Text(name), exported))
			}
		}
	}
	return nodes
}

// detectStructuralJava records top-level type declarations.
func detectStructuralJava(f *SourceFile) []DocumentationNode {
	st := f.Tree()
	if st == nil {
		return nil
	}
	var nodes []DocumentationNode
	for i := 0; i < int(st.Root.NamedChildCount()); i++ {
		decl := st.Root.NamedChild(i)
		kind, ok := javaDeclKinds[decl.Type()]
		if !ok {
			continue
		}
		if name := decl.ChildByFieldName("name"); name != nil {
			nodes = append(nodes, declNode(f, decl, kind, st.Text(name), false))
		}
	}
	return nodes
}

func declNode(f *SourceFile, decl *sitter.Node, kind NodeKind, name string, exported bool) DocumentationNode {
	return DocumentationNode{
		Kind:      kind,
		Path:      f.Path,
		Title:     name,
		Citations: []Citation{citationFor(f.Path, decl)},
		Metadata: map[string]any{
			"language": f.Language(),
			"exported": exported,
		},
	}
}

func isFunctionValue(n *sitter.Node) bool {
	switch n.Type() {
	case "arrow_function", "function", "function_expression", "generator_function":
		return true
	}
	return false
}
