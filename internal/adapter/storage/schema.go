package storage

var schemas = map[string][]string{
	DialectMySQL: {
		`CREATE TABLE IF NOT EXISTS stores (
			id VARCHAR(64) PRIMARY KEY,
			store_key VARCHAR(64) NOT NULL UNIQUE,
			name VARCHAR(255) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS products (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS transfer_requests (
			id VARCHAR(64) PRIMARY KEY,
			sending_store_id VARCHAR(64) NOT NULL,
			receiving_store_id VARCHAR(64) NOT NULL,
			initiating_employee_id VARCHAR(64) NOT NULL,
			responding_employee_id VARCHAR(64) NULL,
			status VARCHAR(16) NOT NULL,
			request_notes TEXT NOT NULL,
			response_notes TEXT NOT NULL,
			system_message TEXT NOT NULL,
			shipped_at DATETIME(6) NULL,
			received_at DATETIME(6) NULL,
			version BIGINT NOT NULL,
			created_at DATETIME(6) NOT NULL,
			updated_at DATETIME(6) NOT NULL,
			INDEX idx_transfer_requests_sending (sending_store_id, created_at),
			INDEX idx_transfer_requests_receiving (receiving_store_id, created_at),
			FOREIGN KEY (sending_store_id) REFERENCES stores(id),
			FOREIGN KEY (receiving_store_id) REFERENCES stores(id)
		)`,
		`CREATE TABLE IF NOT EXISTS transfer_request_items (
			id VARCHAR(64) PRIMARY KEY,
			transfer_request_id VARCHAR(64) NOT NULL,
			line_no INT NOT NULL,
			product_id VARCHAR(64) NOT NULL,
			product_name VARCHAR(255) NOT NULL,
			quantity_requested INT NOT NULL,
			INDEX idx_transfer_request_items_request (transfer_request_id, line_no),
			FOREIGN KEY (transfer_request_id) REFERENCES transfer_requests(id) ON DELETE CASCADE,
			FOREIGN KEY (product_id) REFERENCES products(id)
		)`,
		`CREATE TABLE IF NOT EXISTS store_inventories (
			id VARCHAR(64) PRIMARY KEY,
			store_id VARCHAR(64) NOT NULL,
			product_id VARCHAR(64) NOT NULL,
			quantity INT NOT NULL,
			price DECIMAL(12,2) NOT NULL,
			last_verified DATETIME(6) NULL,
			version BIGINT NOT NULL,
			created_at DATETIME(6) NOT NULL,
			updated_at DATETIME(6) NOT NULL,
			UNIQUE KEY uq_store_inventories_store_product (store_id, product_id),
			FOREIGN KEY (store_id) REFERENCES stores(id),
			FOREIGN KEY (product_id) REFERENCES products(id)
		)`,
		`CREATE TABLE IF NOT EXISTS sales_logs (
			id VARCHAR(64) PRIMARY KEY,
			store_id VARCHAR(64) NOT NULL,
			employee_id VARCHAR(64) NOT NULL,
			total_amount DECIMAL(12,2) NOT NULL,
			created_at DATETIME(6) NOT NULL,
			INDEX idx_sales_logs_store (store_id, created_at)
		)`,
		`CREATE TABLE IF NOT EXISTS sales_log_items (
			sales_log_id VARCHAR(64) NOT NULL,
			line_no INT NOT NULL,
			product_id VARCHAR(64) NOT NULL,
			quantity INT NOT NULL,
			price_at_sale DECIMAL(12,2) NOT NULL,
			amount DECIMAL(12,2) NOT NULL,
			PRIMARY KEY (sales_log_id, line_no),
			FOREIGN KEY (sales_log_id) REFERENCES sales_logs(id) ON DELETE CASCADE
		)`,
	},

	DialectPostgres: {
		`CREATE TABLE IF NOT EXISTS stores (
			id TEXT PRIMARY KEY,
			store_key TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS transfer_requests (
			id TEXT PRIMARY KEY,
			sending_store_id TEXT NOT NULL REFERENCES stores(id),
			receiving_store_id TEXT NOT NULL REFERENCES stores(id),
			initiating_employee_id TEXT NOT NULL,
			responding_employee_id TEXT NULL,
			status TEXT NOT NULL,
			request_notes TEXT NOT NULL,
			response_notes TEXT NOT NULL,
			system_message TEXT NOT NULL,
			shipped_at TIMESTAMPTZ NULL,
			received_at TIMESTAMPTZ NULL,
			version BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transfer_requests_sending ON transfer_requests(sending_store_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_transfer_requests_receiving ON transfer_requests(receiving_store_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS transfer_request_items (
			id TEXT PRIMARY KEY,
			transfer_request_id TEXT NOT NULL REFERENCES transfer_requests(id) ON DELETE CASCADE,
			line_no INTEGER NOT NULL,
			product_id TEXT NOT NULL REFERENCES products(id),
			product_name TEXT NOT NULL,
			quantity_requested INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transfer_request_items_request ON transfer_request_items(transfer_request_id, line_no)`,
		`CREATE TABLE IF NOT EXISTS store_inventories (
			id TEXT PRIMARY KEY,
			store_id TEXT NOT NULL REFERENCES stores(id),
			product_id TEXT NOT NULL REFERENCES products(id),
			quantity INTEGER NOT NULL,
			price NUMERIC(12,2) NOT NULL,
			last_verified TIMESTAMPTZ NULL,
			version BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			UNIQUE (store_id, product_id)
		)`,
		`CREATE TABLE IF NOT EXISTS sales_logs (
			id TEXT PRIMARY KEY,
			store_id TEXT NOT NULL,
			employee_id TEXT NOT NULL,
			total_amount NUMERIC(12,2) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sales_logs_store ON sales_logs(store_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS sales_log_items (
			sales_log_id TEXT NOT NULL REFERENCES sales_logs(id) ON DELETE CASCADE,
			line_no INTEGER NOT NULL,
			product_id TEXT NOT NULL,
			quantity INTEGER NOT NULL,
			price_at_sale NUMERIC(12,2) NOT NULL,
			amount NUMERIC(12,2) NOT NULL,
			PRIMARY KEY (sales_log_id, line_no)
		)`,
	},

	// Prices are TEXT so decimals round-trip without float conversion.
	DialectSQLite: {
		`CREATE TABLE IF NOT EXISTS stores (
			id TEXT PRIMARY KEY,
			store_key TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS transfer_requests (
			id TEXT PRIMARY KEY,
			sending_store_id TEXT NOT NULL REFERENCES stores(id),
			receiving_store_id TEXT NOT NULL REFERENCES stores(id),
			initiating_employee_id TEXT NOT NULL,
			responding_employee_id TEXT NULL,
			status TEXT NOT NULL,
			request_notes TEXT NOT NULL,
			response_notes TEXT NOT NULL,
			system_message TEXT NOT NULL,
			shipped_at DATETIME NULL,
			received_at DATETIME NULL,
			version INTEGER NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transfer_requests_sending ON transfer_requests(sending_store_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_transfer_requests_receiving ON transfer_requests(receiving_store_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS transfer_request_items (
			id TEXT PRIMARY KEY,
			transfer_request_id TEXT NOT NULL REFERENCES transfer_requests(id) ON DELETE CASCADE,
			line_no INTEGER NOT NULL,
			product_id TEXT NOT NULL REFERENCES products(id),
			product_name TEXT NOT NULL,
			quantity_requested INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transfer_request_items_request ON transfer_request_items(transfer_request_id, line_no)`,
		`CREATE TABLE IF NOT EXISTS store_inventories (
			id TEXT PRIMARY KEY,
			store_id TEXT NOT NULL REFERENCES stores(id),
			product_id TEXT NOT NULL REFERENCES products(id),
			quantity INTEGER NOT NULL,
			price TEXT NOT NULL,
			last_verified DATETIME NULL,
			version INTEGER NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			UNIQUE (store_id, product_id)
		)`,
		`CREATE TABLE IF NOT EXISTS sales_logs (
			id TEXT PRIMARY KEY,
			store_id TEXT NOT NULL,
			employee_id TEXT NOT NULL,
			total_amount TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sales_logs_store ON sales_logs(store_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS sales_log_items (
			sales_log_id TEXT NOT NULL REFERENCES sales_logs(id) ON DELETE CASCADE,
			line_no INTEGER NOT NULL,
			product_id TEXT NOT NULL,
			quantity INTEGER NOT NULL,
			price_at_sale TEXT NOT NULL,
			amount TEXT NOT NULL,
			PRIMARY KEY (sales_log_id, line_no)
		)`,
	},
}
