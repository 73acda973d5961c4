package database

const schema = `
CREATE TABLE IF NOT EXISTS plans (
    chat_id BIGINT PRIMARY KEY,
    plan VARCHAR(16) NOT NULL DEFAULT 'free',
    expires_at TIMESTAMP NULL DEFAULT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS usage_daily (
    chat_id BIGINT NOT NULL,
    period_day CHAR(8) NOT NULL,
    text_count INT NOT NULL DEFAULT 0,
    image_count INT NOT NULL DEFAULT 0,
    PRIMARY KEY (chat_id, period_day)
);

CREATE TABLE IF NOT EXISTS usage_image_monthly (
    chat_id BIGINT NOT NULL,
    period_month CHAR(6) NOT NULL,
    count INT NOT NULL DEFAULT 0,
    PRIMARY KEY (chat_id, period_month)
);

CREATE TABLE IF NOT EXISTS history (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    chat_id BIGINT NOT NULL,
    kind VARCHAR(8) NOT NULL,
    prompt TEXT NOT NULL,
    response TEXT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    KEY idx_history_chat (chat_id, id)
);

CREATE TABLE IF NOT EXISTS settings (
    chat_id BIGINT PRIMARY KEY,
    voice_reply TINYINT NOT NULL DEFAULT 0,
    auto_route TINYINT NOT NULL DEFAULT 1,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS redeem_codes (
    code VARCHAR(64) PRIMARY KEY,
    plan VARCHAR(16) NOT NULL,
    days INT NOT NULL,
    used TINYINT NOT NULL DEFAULT 0,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`
