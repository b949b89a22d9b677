package resources

// These values must match the backend's enum definitions exactly.

type Enum struct {
	Name   string            `json:"name"`
	Values []string          `json:"values"`
	Labels map[string]string `json:"labels"`
}

func (e Enum) Valid(v string) bool {
	for _, x := range e.Values {
		if x == v {
			return true
		}
	}
	return false
}

// Label falls back to the raw value for anything unknown.
func (e Enum) Label(v string) string {
	if l, ok := e.Labels[v]; ok {
		return l
	}
	return v
}

const (
	RoleAdmin  = "ADMIN"
	RoleDriver = "DRIVER"
	RoleStaff  = "STAFF"
)

var RoleCode = Enum{
	Name:   "role",
	Values: []string{RoleAdmin, RoleDriver, RoleStaff},
	Labels: map[string]string{
		RoleAdmin:  "Admin",
		RoleDriver: "Driver",
		RoleStaff:  "Staff",
	},
}

var TruckStatus = Enum{
	Name:   "truck status",
	Values: []string{"AVAILABLE", "IN_USE", "MAINTENANCE", "RETIRED"},
	Labels: map[string]string{
		"AVAILABLE":   "Sẵn sàng",
		"IN_USE":      "Đang sử dụng",
		"MAINTENANCE": "Bảo trì",
		"RETIRED":     "Ngừng hoạt động",
	},
}

var ScheduleStatus = Enum{
	Name:   "schedule status",
	Values: []string{"CREATED", "RUNNING", "COMPLETED"},
	Labels: map[string]string{
		"CREATED":   "Đã tạo",
		"RUNNING":   "Đang chạy",
		"COMPLETED": "Hoàn thành",
	},
}

var ApproveStatus = Enum{
	Name:   "approve status",
	Values: []string{"PENDING", "APPROVED", "REJECTED"},
	Labels: map[string]string{
		"PENDING":  "Chờ duyệt",
		"APPROVED": "Đã duyệt",
		"REJECTED": "Từ chối",
	},
}

var CostType = Enum{
	Name:   "cost type",
	Values: []string{"FUEL", "TOLL", "REPAIR", "OTHER"},
	Labels: map[string]string{
		"FUEL":   "Nhiên liệu",
		"TOLL":   "Phí đường bộ",
		"REPAIR": "Sửa chữa",
		"OTHER":  "Khác",
	},
}

var UserStatus = Enum{
	Name:   "user status",
	Values: []string{"ACTIVE", "INACTIVE"},
	Labels: map[string]string{
		"ACTIVE":   "Active",
		"INACTIVE": "Inactive",
	},
}

// All enums by name, for screens that render selects.
var Enums = map[string]Enum{
	"roles":           RoleCode,
	"truck-status":    TruckStatus,
	"schedule-status": ScheduleStatus,
	"approve-status":  ApproveStatus,
	"cost-types":      CostType,
	"user-status":     UserStatus,
}
