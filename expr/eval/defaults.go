package eval

// DefaultFunctionMap assembles the exhaustive built-in operator catalog
// from §4.6 into a single base FunctionMap. Rule-level and
// expression-function overlays (CALL_EXPRESSION, DEP_*, ACTION, FIELD,
// ...) are layered on top with Overlay for the duration of one
// evaluation.
func DefaultFunctionMap() *FunctionMap {
	return NewFunctionMap(map[string]Function{
		// Quoting & control.
		"'":                opQuote,
		"`":                opQuasiQuote,
		",":                opSpliceBare,
		",@":               opSpliceListBare,
		"if":               opIf,
		"cond":             opCond,
		"case":             opCase,
		"case*":            opCaseStar,
		"fail":             opFail,
		"assert":           opAssert,
		"assert_non_empty": opAssertNonEmpty,
		"context":          opContext,
		"let*":             opLetStar,
		"env":              opEnv,
		"var":              opVar,

		// Truth.
		"==":  opEquals,
		"not": opNot,
		"and": opAnd,
		"or":  opOr,

		// Arithmetic & list.
		"+":         opPlus,
		"*":         opTimes,
		"++":        opConcatLists,
		"length":    opLength,
		"reverse":   opReverse,
		"range":     opRange,
		"keys":      opKeys,
		"values":    opValues,
		"enumerate": opEnumerate,
		"set":       opSet,
		"nub_right": opNubRight,
		"lookup":    opLookup,
		"[]":        opIndex,

		// Maps.
		"empty_map":          opEmptyMap,
		"singleton_map":      opSingletonMap,
		"map_union":          opMapUnion,
		"disjoint_map_union": opDisjointMapUnion,
		"to_subdir":          opToSubdir,
		"from_subdir":        opFromSubdir,

		// Strings.
		"join":                opJoin,
		"join_cmd":            opJoinCmd,
		"json_encode":         opJSONEncode,
		"escape_chars":        opEscapeChars,
		"change_ending":       opChangeEnding,
		"basename":            opBasename,
		"concat_target_name":  opConcatTargetName,

		// Iteration.
		"foreach":     opForeach,
		"foreach_map": opForeachMap,
		"foldl":       opFoldl,
	})
}
