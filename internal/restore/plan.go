package restore

// BuildPlan computes the tables to restore and their order.
//
// The result always follows master: a table is kept when it is present in
// the document and, if requested is non-nil, also listed there. The order of
// requested never matters. Names unknown to master, and requested tables the
// document does not carry, are dropped silently so a backup taken under an
// older or newer schema still restores what it can.
func BuildPlan(master []TableName, doc *BackupDocument, requested []TableName) []TableName {
	var want map[TableName]bool
	if requested != nil {
		want = make(map[TableName]bool, len(requested))
		for _, name := range requested {
			want[name] = true
		}
	}

	plan := make([]TableName, 0, len(master))
	for _, name := range master {
		if _, ok := doc.Data[name]; !ok {
			continue
		}
		if want != nil && !want[name] {
			continue
		}
		plan = append(plan, name)
	}
	return plan
}

// ClearOrder returns the order in which the clearing phase visits tables:
// the exact reverse of the plan, so children are emptied before parents.
func ClearOrder(plan []TableName) []TableName {
	order := make([]TableName, len(plan))
	for i, name := range plan {
		order[len(plan)-1-i] = name
	}
	return order
}

// UnknownTables lists document tables that master does not know about.
// They are never restored; the list only feeds logs and previews.
func UnknownTables(master []TableName, doc *BackupDocument) []TableName {
	known := make(map[TableName]bool, len(master))
	for _, name := range master {
		known[name] = true
	}

	var unknown []TableName
	for name := range doc.Data {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	sortTableNames(unknown)
	return unknown
}
