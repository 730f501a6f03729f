//go:build cgo

package boilerplate

import (
	"context"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/csharp"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/rust"
)

const (
	entryPointName       = "main"
	nameField            = "name"
	declaratorField      = "declarator"
	goFunctionNodeType   = "function_declaration"
	goPackageNodeType    = "package_clause"
	rustFunctionNodeType = "function_item"
	cFunctionNodeType    = "function_definition"
	cDeclaratorNodeType  = "function_declarator"
)

var (
	javaTypeNodeTypes   = []string{"class_declaration", "interface_declaration", "enum_declaration", "record_declaration"}
	csharpTypeNodeTypes = []string{"class_declaration", "struct_declaration", "record_declaration"}
)

type nodeMatcher func(node *sitter.Node, content []byte) bool

type syntaxTreeDetector struct{}

func newEntryPointDetector() entryPointDetector {
	return syntaxTreeDetector{}
}

// HasEntryPoint parses source with the tree-sitter grammar of family. A fresh parser is used per
// call because parsers are not safe for concurrent use.
func (syntaxTreeDetector) HasEntryPoint(family languageFamily, source string) (bool, bool) {
	var grammarLanguage *sitter.Language
	var matcher nodeMatcher
	switch family {
	case familyGo:
		grammarLanguage = golang.GetLanguage()
		matcher = matchGoProgram
	case familyJava:
		grammarLanguage = java.GetLanguage()
		matcher = matchNodeType(javaTypeNodeTypes)
	case familyRust:
		grammarLanguage = rust.GetLanguage()
		matcher = matchNamedFunction(rustFunctionNodeType)
	case familyC:
		grammarLanguage = c.GetLanguage()
		matcher = matchCMain
	case familyCPP:
		grammarLanguage = cpp.GetLanguage()
		matcher = matchCMain
	case familyCSharp:
		grammarLanguage = csharp.GetLanguage()
		matcher = matchNodeType(csharpTypeNodeTypes)
	default:
		return false, false
	}

	parser := sitter.NewParser()
	parser.SetLanguage(grammarLanguage)
	content := []byte(source)
	tree, parseErr := parser.ParseCtx(context.Background(), nil, content)
	if parseErr != nil || tree == nil {
		return false, false
	}
	return containsMatch(tree.RootNode(), content, matcher), true
}

func containsMatch(root *sitter.Node, content []byte, matcher nodeMatcher) bool {
	pending := []*sitter.Node{root}
	for len(pending) > 0 {
		current := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		if current == nil {
			continue
		}
		if matcher(current, content) {
			return true
		}
		for index := 0; index < int(current.NamedChildCount()); index++ {
			pending = append(pending, current.NamedChild(index))
		}
	}
	return false
}

func matchGoProgram(node *sitter.Node, content []byte) bool {
	if node.Type() == goPackageNodeType {
		return true
	}
	return matchNamedFunction(goFunctionNodeType)(node, content)
}

func matchNamedFunction(nodeType string) nodeMatcher {
	return func(node *sitter.Node, content []byte) bool {
		if node.Type() != nodeType {
			return false
		}
		nameNode := node.ChildByFieldName(nameField)
		return nameNode != nil && nameNode.Content(content) == entryPointName
	}
}

// matchCMain accepts a function definition whose (possibly nested) function declarator names main.
func matchCMain(node *sitter.Node, content []byte) bool {
	if node.Type() != cFunctionNodeType {
		return false
	}
	declarator := node.ChildByFieldName(declaratorField)
	for declarator != nil {
		if declarator.Type() == cDeclaratorNodeType {
			name := declarator.ChildByFieldName(declaratorField)
			return name != nil && name.Content(content) == entryPointName
		}
		declarator = declarator.ChildByFieldName(declaratorField)
	}
	return false
}

func matchNodeType(nodeTypes []string) nodeMatcher {
	return func(node *sitter.Node, content []byte) bool {
		nodeType := node.Type()
		for _, candidate := range nodeTypes {
			if nodeType == candidate {
				return true
			}
		}
		return false
	}
}
