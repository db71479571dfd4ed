package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasPermission(t *testing.T) {
	assert.True(t, HasPermission(RoleCEO, PermissionCreateTask))
	assert.True(t, HasPermission(RoleCEO, PermissionDeleteTask))
	assert.False(t, HasPermission(RoleEmployee, PermissionCreateTask))
	assert.False(t, HasPermission(RoleEmployee, PermissionInviteEmployee))
	assert.True(t, HasPermission(RoleEmployee, PermissionReadTask))
	assert.False(t, HasPermission("guest", PermissionReadTask))
}

func TestCheckPermissionReturnsTypedError(t *testing.T) {
	err := CheckPermission(RoleEmployee, PermissionDeleteTask)
	var denied *PermissionDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, PermissionDeleteTask, denied.Permission)
}

func TestCheckTaskUpdate(t *testing.T) {
	tests := []struct {
		name       string
		role       string
		fields     []string
		status     string
		isAssignee bool
		wantErr    any
	}{
		{"ceo any field", RoleCEO, []string{"title", "status"}, "Completed", false, nil},
		{"employee progress", RoleEmployee, []string{"progress"}, "", true, nil},
		{"employee in progress", RoleEmployee, []string{"status"}, "In Progress", true, nil},
		{"employee pending review", RoleEmployee, []string{"status", "progress"}, "Pending Review", true, nil},
		{"employee completed", RoleEmployee, []string{"status"}, "Completed", true, &StatusNotAllowedError{}},
		{"employee overdue", RoleEmployee, []string{"status"}, "Overdue", true, &StatusNotAllowedError{}},
		{"employee title", RoleEmployee, []string{"title"}, "", true, &FieldNotAllowedError{}},
		{"employee not assignee", RoleEmployee, []string{"status"}, "In Progress", false, &NotAssigneeError{}},
		{"unknown role", "guest", []string{"status"}, "In Progress", true, &PermissionDeniedError{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckTaskUpdate(tt.role, tt.fields, tt.status, tt.isAssignee)
			switch tt.wantErr.(type) {
			case nil:
				assert.NoError(t, err)
			case *StatusNotAllowedError:
				var e *StatusNotAllowedError
				assert.ErrorAs(t, err, &e)
			case *FieldNotAllowedError:
				var e *FieldNotAllowedError
				assert.ErrorAs(t, err, &e)
			case *NotAssigneeError:
				var e *NotAssigneeError
				assert.ErrorAs(t, err, &e)
			case *PermissionDeniedError:
				var e *PermissionDeniedError
				assert.ErrorAs(t, err, &e)
			}
		})
	}
}
