package rbac

import "context"

// ModuleStudents owns the per-tab edit actions of the student record page.
const ModuleStudents = "students"

var studentTabs = []string{
	"information",
	"admissions",
	"bursar",
	"registrar",
	"academics",
	"career",
	"graduation",
}

var tabEditActions = func() map[string]string {
	m := make(map[string]string, len(studentTabs))
	for _, tab := range studentTabs {
		m[tab] = "edit_" + tab + "_tab"
	}
	return m
}()

// StudentTabs lists the student record tabs in display order.
func StudentTabs() []string {
	out := make([]string, len(studentTabs))
	copy(out, studentTabs)
	return out
}

// TabEditAction returns the students action that unlocks editing a tab.
func TabEditAction(tab string) (string, bool) {
	action, ok := tabEditActions[normalize(tab)]
	return action, ok
}

// EditableTabsForStudent returns the tabs, in display order, the staff member may edit.
func (r *Resolver) EditableTabsForStudent(ctx context.Context, staffID int64) []string {
	editable := make([]string, 0, len(studentTabs))
	for _, tab := range studentTabs {
		action, _ := TabEditAction(tab)
		if r.HasPermission(ctx, staffID, ModuleStudents, action) {
			editable = append(editable, tab)
		}
	}
	return editable
}
