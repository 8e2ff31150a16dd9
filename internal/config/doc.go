// Package config loads trigger and connection definitions from CUE and YAML
// files.
//
// Both formats share one shape:
//
//	connection: warehouse: {
//		driver: "sqlite3"
//		dsn:    "/var/lib/warehouse.db"
//	}
//
//	trigger: new_orders: {
//		connection:       "warehouse"
//		select:           "SELECT id, status FROM orders WHERE status = 'NEW' ORDER BY id"
//		id_column:        "id"
//		update:           "UPDATE orders SET status = 'CLAIMED' WHERE id = ? AND status = 'NEW'"
//		interval_seconds: 30
//	}
//
// Loading checks shape only. Statement validation happens when a
// TriggerSpec is turned into a trigger.
package config
