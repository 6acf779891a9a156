package database

// schema is applied statement by statement so the DSN does not need multiStatements.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
    id CHAR(36) NOT NULL PRIMARY KEY,
    email VARCHAR(255),
    name VARCHAR(255),
    company_name VARCHAR(255),
    phone VARCHAR(32),
    website VARCHAR(255),
    logo_url VARCHAR(1024),
    apply_branding TINYINT(1) NOT NULL DEFAULT 0,
    is_active TINYINT(1) NOT NULL DEFAULT 1,
    is_admin TINYINT(1) NOT NULL DEFAULT 0,
    token_balance INT NOT NULL DEFAULT 0,
    free_tier_used INT NOT NULL DEFAULT 0,
    daily_reward_claimed_on DATE NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
    CONSTRAINT chk_token_balance CHECK (token_balance >= 0),
    CONSTRAINT chk_free_tier_used CHECK (free_tier_used >= 0)
)`,
	`CREATE TABLE IF NOT EXISTS usage_records (
    id CHAR(36) NOT NULL PRIMARY KEY,
    account_id CHAR(36) NOT NULL,
    generation_type VARCHAR(32) NOT NULL,
    input_tokens INT NOT NULL DEFAULT 0,
    output_tokens INT NOT NULL DEFAULT 0,
    total_tokens INT NOT NULL DEFAULT 0,
    model_used VARCHAR(64) NOT NULL DEFAULT 'gemini-2.5-flash',
    status VARCHAR(16) NOT NULL,
    metadata JSON,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    KEY idx_usage_account (account_id, created_at),
    FOREIGN KEY (account_id) REFERENCES accounts(id)
)`,
	`CREATE TABLE IF NOT EXISTS projects (
    id CHAR(36) NOT NULL PRIMARY KEY,
    account_id CHAR(36) NOT NULL,
    title VARCHAR(255) NOT NULL,
    project_type VARCHAR(32) NOT NULL,
    images JSON NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    KEY idx_projects_account (account_id, created_at),
    FOREIGN KEY (account_id) REFERENCES accounts(id)
)`,
	`CREATE TABLE IF NOT EXISTS payments (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    account_id CHAR(36) NOT NULL,
    bundle_id VARCHAR(64) NOT NULL,
    provider VARCHAR(32) NOT NULL,
    order_id VARCHAR(128) NOT NULL UNIQUE,
    provider_ref VARCHAR(128),
    currency VARCHAR(8) NOT NULL,
    amount_minor BIGINT NOT NULL,
    tokens INT NOT NULL,
    status VARCHAR(16) NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
    FOREIGN KEY (account_id) REFERENCES accounts(id)
)`,
}
