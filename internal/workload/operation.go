package workload

// Operation identifies the kind of store operation a workload issues.
type Operation int

const (
	// OpUnknown is an op string that matched no known operation.
	OpUnknown Operation = iota
	OpInsert
	OpFind
	OpUpdateOne
	OpUpdateMany
	OpDeleteOne
	OpDeleteMany
	OpReplaceOne
	OpReplaceWithNew
	OpAggregate
	OpCustom
	// OpNoOp is the inert fallback. Loops bound to it stay alive but do no work.
	OpNoOp
)

var operationNames = map[Operation]string{
	OpUnknown:        "unknown",
	OpInsert:         "insert",
	OpFind:           "find",
	OpUpdateOne:      "updateOne",
	OpUpdateMany:     "updateMany",
	OpDeleteOne:      "deleteOne",
	OpDeleteMany:     "deleteMany",
	OpReplaceOne:     "replaceOne",
	OpReplaceWithNew: "replaceWithNew",
	OpAggregate:      "aggregate",
	OpCustom:         "custom",
	OpNoOp:           "noop",
}

func (o Operation) String() string {
	if name, ok := operationNames[o]; ok {
		return name
	}
	return "unknown"
}

// ParseOperation maps a config op string onto an Operation.
// Matching is exact (ops are camelCase in config). Anything else is OpUnknown.
func ParseOperation(s string) Operation {
	for op, name := range operationNames {
		if op == OpUnknown {
			continue
		}
		if name == s {
			return op
		}
	}
	return OpUnknown
}

// Operations returns every operation a store strategy can implement,
// in declaration order.
func Operations() []Operation {
	return []Operation{
		OpInsert,
		OpFind,
		OpUpdateOne,
		OpUpdateMany,
		OpDeleteOne,
		OpDeleteMany,
		OpReplaceOne,
		OpReplaceWithNew,
		OpAggregate,
		OpCustom,
	}
}
