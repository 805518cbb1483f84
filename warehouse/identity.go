package warehouse

import "fmt"

// identifyAlias is the alias every identity-bridge join gives the identify
// table. Composed fragments downstream assume this exact alias, so it must
// stay a single letter no primary table ever uses.
const identifyAlias = "i"

// identifyColumn returns the identify-table column holding the given
// identifier space.
func identifyColumn(s *SourceSettings, idType IDType) string {
	if idType == IDTypeAnonymous {
		return s.Identifies.AnonymousIDColumn
	}
	return s.Identifies.UserIDColumn
}

// bridgeIdentity resolves an identifier column for a table aliased as alias,
// natively tracked in the native space, when the caller wants the requested
// space. When the spaces match it returns a direct column reference and no
// join. When they differ it returns a reference through the identify table
// plus the join clause bridging the two spaces.
func bridgeIdentity(s *SourceSettings, d Dialect, requested, native IDType, alias, nativeCol string) (col string, join string) {
	if requested == native {
		return alias + "." + nativeCol, ""
	}
	join = fmt.Sprintf(
		"JOIN %s %s ON (%s.%s = %s.%s)",
		d.QualifyTable(s.Identifies.Table),
		identifyAlias,
		identifyAlias,
		identifyColumn(s, native),
		alias,
		nativeCol,
	)
	return identifyAlias + "." + identifyColumn(s, requested), join
}
