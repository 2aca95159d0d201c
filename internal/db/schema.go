package db

const schema = `
create extension if not exists pgcrypto;

create table if not exists users (
	id uuid primary key default gen_random_uuid(),
	email text not null unique,
	elevated boolean not null default false,
	created_at timestamptz not null default now()
);

create table if not exists user_credentials (
	user_id uuid primary key references users(id),
	password_hash text not null
);

create table if not exists wallets (
	user_id uuid not null references users(id),
	asset text not null,
	balance numeric(30,10) not null default 0 check (balance >= 0),
	locked_balance numeric(30,10) not null default 0
		check (locked_balance >= 0 and locked_balance <= balance),
	updated_at timestamptz not null default now(),
	primary key (user_id, asset)
);

create table if not exists ledger_transactions (
	id uuid primary key default gen_random_uuid(),
	user_id uuid not null,
	asset text not null,
	entry_type text not null,
	amount numeric(30,10) not null,
	locked_delta numeric(30,10) not null default 0,
	balance_before numeric(30,10) not null,
	balance_after numeric(30,10) not null,
	ref text not null unique,
	order_id uuid,
	trade_id uuid,
	created_at timestamptz not null default now(),
	foreign key (user_id, asset) references wallets(user_id, asset)
);
create index if not exists idx_ledger_user_asset_created
	on ledger_transactions (user_id, asset, created_at desc);

create table if not exists orders (
	id uuid primary key,
	user_id uuid not null references users(id),
	symbol text not null,
	side text not null,
	kind text not null,
	status text not null,
	price numeric(30,10),
	stop_price numeric(30,10),
	qty numeric(30,10) not null check (qty > 0),
	filled_qty numeric(30,10) not null default 0 check (filled_qty <= qty),
	avg_fill_price numeric(30,10) not null default 0,
	locked_asset text not null,
	locked_remaining numeric(30,10) not null default 0,
	version bigint not null default 1,
	expires_at timestamptz,
	created_at timestamptz not null default now(),
	updated_at timestamptz not null default now()
);
create index if not exists idx_orders_user_symbol_status
	on orders (user_id, symbol, status);
create index if not exists idx_orders_eligible
	on orders (symbol, status, created_at asc, id asc);

create table if not exists trades (
	id uuid primary key,
	order_id uuid not null references orders(id),
	user_id uuid not null,
	symbol text not null,
	side text not null,
	qty numeric(30,10) not null,
	price numeric(30,10) not null,
	fee numeric(30,10) not null,
	fee_asset text not null,
	executed_at timestamptz not null default now()
);
create index if not exists idx_trades_order on trades (order_id);

create table if not exists mode_state (
	user_id uuid primary key references users(id),
	mode text not null default 'paper',
	switched_at timestamptz not null default now(),
	updated_at timestamptz not null default now()
);

create table if not exists mode_audit (
	id uuid primary key default gen_random_uuid(),
	user_id uuid not null,
	actor text not null,
	origin text not null,
	target_mode text not null,
	outcome text not null,
	detail text not null default '',
	created_at timestamptz not null default now()
);
create index if not exists idx_mode_audit_user_created
	on mode_audit (user_id, created_at desc);
`
