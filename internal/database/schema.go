package database

var schema = []string{
	`
CREATE TABLE IF NOT EXISTS plans (
    tier VARCHAR(32) PRIMARY KEY,
    title VARCHAR(255) NOT NULL,
    daily_limit_bytes BIGINT NOT NULL,
    parallel_limit INT NOT NULL DEFAULT 1,
    price VARCHAR(64),
    is_active TINYINT(1) NOT NULL DEFAULT 1,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
)`,
	`
CREATE TABLE IF NOT EXISTS accounts (
    telegram_id BIGINT PRIMARY KEY,
    plan VARCHAR(32) NOT NULL DEFAULT 'free',
    daily_uploaded_bytes BIGINT NOT NULL DEFAULT 0,
    last_upload_at DATETIME NULL,
    daily_limit_bytes BIGINT NOT NULL,
    parallel_limit INT NOT NULL DEFAULT 1,
    plan_expires_at DATETIME NULL,
    default_thumbnail_id VARCHAR(255),
    default_thumbnail_key VARCHAR(512),
    default_caption TEXT,
    operation_id VARCHAR(36) NULL,
    operation JSON NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
)`,
	`
CREATE TABLE IF NOT EXISTS transfer_logs (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    user_id BIGINT NOT NULL,
    operation_id VARCHAR(36) NOT NULL,
    kind VARCHAR(16) NOT NULL,
    original_name VARCHAR(512) NOT NULL,
    new_name VARCHAR(512) NOT NULL,
    size_bytes BIGINT NOT NULL,
    status VARCHAR(16) NOT NULL,
    error TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    INDEX idx_transfer_logs_user (user_id, created_at),
    FOREIGN KEY (user_id) REFERENCES accounts(telegram_id)
)`,
}
