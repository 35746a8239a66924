package sheets

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"ledger/internal/core"
)

// ArchiveBaseName is the period tag for a snapshot, e.g. "clients_March_2025".
func ArchiveBaseName(table core.TableName, at time.Time) string {
	return fmt.Sprintf("%s_%s_%d", table, at.Month().String(), at.Year())
}

// NextArchiveName returns the base name, or the base name with the first
// free "_n" suffix (n >= 2) when exists reports it as taken.
func NextArchiveName(table core.TableName, at time.Time, exists func(id string) bool) string {
	base := ArchiveBaseName(table, at)
	if !exists(base) {
		return base
	}
	for n := 2; ; n++ {
		id := base + "_" + strconv.Itoa(n)
		if !exists(id) {
			return id
		}
	}
}

// ParseArchiveName splits an archive id into its period. seq is 1 for the
// unsuffixed name. ok is false when the id does not follow the naming scheme.
func ParseArchiveName(table core.TableName, id string) (year int, month time.Month, seq int, ok bool) {
	rest, found := strings.CutPrefix(id, string(table)+"_")
	if !found {
		return 0, 0, 0, false
	}
	parts := strings.Split(rest, "_")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, 0, 0, false
	}
	m, err := time.Parse("January", parts[0])
	if err != nil {
		return 0, 0, 0, false
	}
	y, err := strconv.Atoi(parts[1])
	if err != nil || y < 1 {
		return 0, 0, 0, false
	}
	seq = 1
	if len(parts) == 3 {
		seq, err = strconv.Atoi(parts[2])
		if err != nil || seq < 2 {
			return 0, 0, 0, false
		}
	}
	return y, m.Month(), seq, true
}

// IsArchiveOf reports whether id names a snapshot of table.
func IsArchiveOf(table core.TableName, id string) bool {
	return strings.HasPrefix(id, string(table)+"_")
}

// NewArchiveInfo fills the period fields from the id.
func NewArchiveInfo(table core.TableName, id string) ArchiveInfo {
	info := ArchiveInfo{ID: id, Table: table}
	if y, m, seq, ok := ParseArchiveName(table, id); ok {
		info.Year, info.Month, info.Seq = y, m, seq
	}
	return info
}

// SortArchives orders snapshots newest first: by period and sequence when
// the id parses, otherwise after the parsed ones by id descending.
func SortArchives(infos []ArchiveInfo) {
	sort.SliceStable(infos, func(i, j int) bool {
		a, b := infos[i], infos[j]
		aok, bok := a.Year > 0, b.Year > 0
		switch {
		case aok && !bok:
			return true
		case !aok && bok:
			return false
		case !aok && !bok:
			return a.ID > b.ID
		}
		if a.Year != b.Year {
			return a.Year > b.Year
		}
		if a.Month != b.Month {
			return a.Month > b.Month
		}
		if a.Seq != b.Seq {
			return a.Seq > b.Seq
		}
		return a.ID > b.ID
	})
}

// ValidArchiveID rejects ids that could escape an archive directory.
func ValidArchiveID(table core.TableName, id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") || !IsArchiveOf(table, id) {
		return fmt.Errorf("%w: %q", ErrArchiveNotFound, id)
	}
	return nil
}
