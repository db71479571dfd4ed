package rbac

// 权限常量
const (
	// CEO 专属权限
	PermissionCreateTask     = "task:create"
	PermissionDeleteTask     = "task:delete"
	PermissionUpdateAnyTask  = "task:update_any"
	PermissionInviteEmployee = "organization:invite"
	PermissionViewAllTasks   = "task:read_all"

	// 普通操作权限
	PermissionReadTask       = "task:read"
	PermissionUpdateTaskFlow = "task:update_status"
	PermissionReadRoster     = "organization:read_users"
)

// 角色常量
const (
	RoleCEO      = "ceo"
	RoleEmployee = "employee"
)

// 角色权限映射
var rolePermissions = map[string][]string{
	RoleEmployee: {
		PermissionReadTask,
		PermissionUpdateTaskFlow,
		PermissionReadRoster,
	},
	RoleCEO: {
		PermissionReadTask,
		PermissionUpdateTaskFlow,
		PermissionReadRoster,
		PermissionCreateTask,
		PermissionDeleteTask,
		PermissionUpdateAnyTask,
		PermissionInviteEmployee,
		PermissionViewAllTasks,
	},
}

// CEO 专属状态
var ceoOnlyStatuses = map[string]bool{
	"Overdue":   true,
	"Completed": true,
}

// employee 可以修改的任务字段
var employeeTaskFields = map[string]bool{
	"status":   true,
	"progress": true,
}

// HasPermission 检查角色是否有指定权限
func HasPermission(role, permission string) bool {
	permissions, ok := rolePermissions[role]
	if !ok {
		return false
	}

	for _, p := range permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// CheckPermission 检查角色是否有指定权限（返回错误而不是布尔值，便于处理）
func CheckPermission(role, permission string) error {
	if !HasPermission(role, permission) {
		return &PermissionDeniedError{
			Role:       role,
			Permission: permission,
		}
	}
	return nil
}

// CheckTaskUpdate 校验一次任务更新是否被允许
// fields: 本次更新涉及的字段名；status: 新状态（未修改时为空）；isAssignee: 当前用户是否在 assignedTo 中
func CheckTaskUpdate(role string, fields []string, status string, isAssignee bool) error {
	if HasPermission(role, PermissionUpdateAnyTask) {
		return nil
	}
	if err := CheckPermission(role, PermissionUpdateTaskFlow); err != nil {
		return err
	}
	if !isAssignee {
		return &NotAssigneeError{Role: role}
	}
	for _, f := range fields {
		if !employeeTaskFields[f] {
			return &FieldNotAllowedError{Role: role, Field: f}
		}
	}
	if ceoOnlyStatuses[status] {
		return &StatusNotAllowedError{Role: role, Status: status}
	}
	return nil
}

// PermissionDeniedError 表示权限不足的错误
type PermissionDeniedError struct {
	Role       string
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return "insufficient permissions"
}

// NotAssigneeError 员工尝试修改未分配给自己的任务
type NotAssigneeError struct {
	Role string
}

func (e *NotAssigneeError) Error() string {
	return "task is not assigned to you"
}

// FieldNotAllowedError 员工尝试修改 status/progress 以外的字段
type FieldNotAllowedError struct {
	Role  string
	Field string
}

func (e *FieldNotAllowedError) Error() string {
	return "field " + e.Field + " cannot be changed by role " + e.Role
}

// StatusNotAllowedError 员工尝试设置 CEO 专属状态
type StatusNotAllowedError struct {
	Role   string
	Status string
}

func (e *StatusNotAllowedError) Error() string {
	return "status " + e.Status + " can only be set by a ceo"
}
