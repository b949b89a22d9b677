// Package resources describes the backend's CRUD endpoints so screens can reach
// them by name. The later backend revision is the one targeted: schedule
// approve/reject/cancel are GETs, transaction and cost approve/reject are PUTs.
package resources

import "net/http"

type Action struct {
	Method string
	// Backend path. For per-item actions the id is appended as the last segment.
	Path string
	// Collection actions don't take an id
	Collection bool
	// When set, the body must be {"status": <value of this enum>}
	Status *Enum
}

type Resource struct {
	// Name used by the console, e.g. "salary-reports"
	Name string
	// Backend prefix and entity, e.g. "/salaryReport" and "SalaryReport"
	Base   string
	Entity string

	// Overrides the default view path for single items
	GetPath string
	NoGet   bool

	Actions map[string]Action
}

func (r Resource) ListPath() string   { return r.Base + "/view" + r.Entity }
func (r Resource) CreatePath() string { return r.Base + "/create" + r.Entity }

func (r Resource) ItemPath(id string) string {
	if r.GetPath != "" {
		return r.GetPath + "/" + id
	}
	return r.ListPath() + "/" + id
}

func (r Resource) UpdatePath(id string) string { return r.Base + "/update" + r.Entity + "/" + id }
func (r Resource) DeletePath(id string) string { return r.Base + "/delete" + r.Entity + "/" + id }

func byID(method, path string) Action {
	return Action{Method: method, Path: path}
}

var Catalog = map[string]Resource{}

func register(r Resource) {
	Catalog[r.Name] = r
}

func init() {
	register(Resource{
		Name: "trucks", Base: "/truck", Entity: "Truck",
		Actions: map[string]Action{
			"status": {Method: http.MethodPut, Path: "/truck/updateStatusTruck", Status: &TruckStatus},
		},
	})
	register(Resource{Name: "routes", Base: "/route", Entity: "Route"})
	register(Resource{
		Name: "schedules", Base: "/schedule", Entity: "Schedule",
		Actions: map[string]Action{
			"approve": byID(http.MethodGet, "/schedule/approveSchedule"),
			"reject":  byID(http.MethodGet, "/schedule/rejectSchedule"),
			"cancel":  byID(http.MethodGet, "/schedule/cancelSchedule"),
			"end":     byID(http.MethodPut, "/schedule/endSchedule"),
		},
	})
	register(Resource{Name: "products", Base: "/product", Entity: "Product"})
	register(Resource{Name: "categories", Base: "/category", Entity: "Category"})
	register(Resource{
		Name: "inventories", Base: "/inventory", Entity: "Inventory",
		GetPath: "/inventory/findInventory",
		Actions: map[string]Action{
			"filter": {Method: http.MethodPost, Path: "/inventory/filterInventory", Collection: true},
			"export": {Method: http.MethodGet, Path: "/inventory/exportInventory", Collection: true},
		},
	})
	register(Resource{
		Name: "transactions", Base: "/transaction", Entity: "Transaction",
		Actions: map[string]Action{
			"approve": byID(http.MethodPut, "/transaction/approveTransaction"),
			"reject":  byID(http.MethodPut, "/transaction/rejectTransaction"),
		},
	})
	register(Resource{Name: "transaction-details", Base: "/transactiondetail", Entity: "TransactionDetail", NoGet: true})
	register(Resource{
		Name: "costs", Base: "/cost", Entity: "Cost",
		Actions: map[string]Action{
			"approve": byID(http.MethodPut, "/cost/approveCost"),
			"reject":  byID(http.MethodPut, "/cost/rejectCost"),
		},
	})
	register(Resource{Name: "cost-types", Base: "/costType", Entity: "CostType"})
	register(Resource{
		Name: "salary-reports", Base: "/salaryReport", Entity: "SalaryReport",
		Actions: map[string]Action{
			"detail":     byID(http.MethodGet, "/salaryReport/viewSalaryReportDetail"),
			"done":       byID(http.MethodPut, "/salaryReport/markAsDone"),
			"create-all": {Method: http.MethodPost, Path: "/salaryReport/createAllSalaryReport", Collection: true},
		},
	})
	register(Resource{
		Name: "users", Base: "/user", Entity: "User",
		Actions: map[string]Action{
			"status": {Method: http.MethodPut, Path: "/user/updateStatusUser", Status: &UserStatus},
		},
	})
}

// Reports are read-only and take their filters (startDate, endDate, date, truckId, driverId) as query params.
var Reports = map[string]string{
	"truck-cost":       "/reports/truck-cost",
	"truck-daily":      "/reports/truck-daily",
	"truck-trip-count": "/reports/truck-trip-count",
	"driver-cost":      "/reports/driver-cost",
}
