package storage

import "github.com/mts-studios/targetview/pkg/table"

// DiffTables compares two datasets by row index, which is the only identity a
// record has. A nil prev means every row of next was added.
func DiffTables(prev, next *table.Table) []Change {
	var before, after []table.Record
	if prev != nil {
		before = prev.Rows()
	}
	if next != nil {
		after = next.Rows()
	}

	var changes []Change
	for i := 0; i < len(before) || i < len(after); i++ {
		switch {
		case i >= len(before):
			changes = append(changes, Change{RowIndex: i, Title: after[i].Title, ChangeType: ChangeAdded})
		case i >= len(after):
			changes = append(changes, Change{RowIndex: i, Title: before[i].Title, ChangeType: ChangeRemoved})
		case !before[i].Equal(after[i]):
			changes = append(changes, Change{
				RowIndex:   i,
				Title:      after[i].Title,
				ChangeType: ChangeUpdated,
				Columns:    table.ChangedColumns(before[i], after[i]),
			})
		}
	}
	return changes
}
